package conf

// EnvironmentEnum deployment environment
type EnvironmentEnum int

const (
	LocalEnvironmentEnum EnvironmentEnum = iota
	MainnetEnvironmentEnum
	TestnetEnvironmentEnum
	ExampleEnvironmentEnum
)

// SystemEnvironmentEnum current environment, set from the -env flag before InitConfig
var SystemEnvironmentEnum = MainnetEnvironmentEnum

// GetYaml returns the config file path for the current environment
func GetYaml() string {
	switch SystemEnvironmentEnum {
	case LocalEnvironmentEnum:
		return "./conf/config_loc.yaml"
	case TestnetEnvironmentEnum:
		return "./conf/config_testnet.yaml"
	case ExampleEnvironmentEnum:
		return "./conf/config_example.yaml"
	default:
		return "./conf/config.yaml"
	}
}
