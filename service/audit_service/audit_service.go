package audit_service

import (
	"encoding/json"
	"log"

	"wallet-recovery-system/model"
	"wallet-recovery-system/model/dao"
)

// AuditService records wallet lifecycle events. The log is append-only and
// advisory: a failed write is logged and never blocks the operation that
// produced it.
type AuditService struct {
	auditDAO *dao.AuditEntryDAO
}

func NewAuditService() *AuditService {
	return &AuditService{
		auditDAO: dao.NewAuditEntryDAO(),
	}
}

// Record appends one entry. Metadata is flattened to JSON; a marshal or
// write failure is logged and swallowed so validated transitions are never
// vetoed by the audit path.
func (s *AuditService) Record(walletID, action, actorUserID string, metadata map[string]interface{}) {
	metaJSON := ""
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			log.Printf("Audit metadata marshal failed for wallet %s action %s: %v", walletID, action, err)
		} else {
			metaJSON = string(raw)
		}
	}

	entry := &model.AuditEntry{
		WalletID:    walletID,
		Action:      action,
		ActorUserID: actorUserID,
		Metadata:    metaJSON,
	}
	if err := s.auditDAO.Create(entry); err != nil {
		log.Printf("Audit write failed for wallet %s action %s: %v", walletID, action, err)
	}
}

// ListByWallet returns entries for the wallet ordered oldest first, with a
// cursor for the next page. A zero cursor starts from the beginning.
func (s *AuditService) ListByWallet(walletID string, cursor int64, size int) ([]*model.AuditEntry, int64, error) {
	if size <= 0 || size > 500 {
		size = 100
	}
	return s.auditDAO.ListByWallet(walletID, cursor, size)
}
