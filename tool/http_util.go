package tool

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/imroc/req"
)

func init() {
	req.SetTimeout(30 * time.Second)
}

// Base64Encode base64 encode a string
func Base64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// PostUrl send a JSON POST request and return the response body as string
func PostUrl(url string, body interface{}, headers map[string]string) (string, error) {
	header := req.Header{
		"Content-Type": "application/json",
	}
	for k, v := range headers {
		header[k] = v
	}

	resp, err := req.Post(url, header, req.BodyJSON(body))
	if err != nil {
		return "", err
	}

	if resp.Response().StatusCode >= 500 {
		return "", fmt.Errorf("http status %d", resp.Response().StatusCode)
	}

	return resp.ToString()
}
