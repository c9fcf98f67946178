package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Anexo is a scanned credit-note document (the printed NC from SIAFI, or the
// message that carried it) stored next to its NotaCredito for conferência.
// NotaID is nullable: the drop-directory watcher may pick up a scan before
// anyone registered the nota it belongs to.
type Anexo struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time    `json:"-"`
	UpdatedAt      time.Time    `json:"-"`
	NotaID         *uint        `gorm:"index" json:"nota_id"`
	Nota           *NotaCredito `gorm:"foreignKey:NotaID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
	NomeArquivo    string       `gorm:"size:255;not null" json:"nome_arquivo"`
	NomeArmazenado string       `gorm:"size:255;not null;uniqueIndex" json:"nome_armazenado"`
	ContentType    string       `gorm:"size:128" json:"content_type"`
	TamanhoBytes   int64        `json:"tamanho_bytes"`
	// OCR results. ValorOCR stays null when extraction found nothing usable;
	// Divergente marks a scan whose extracted value disagrees with the nota.
	ValorOCR     decimal.NullDecimal `gorm:"column:valor_ocr;type:numeric(14,2)" json:"valor_ocr"`
	ConfiancaOCR float64             `gorm:"column:confianca_ocr" json:"confianca_ocr"`
	Divergente   bool                `gorm:"default:false" json:"divergente"`
	// Mark the anexo as failed for OCR processing (do not delete the record so
	// the seção can review it by hand).
	Failed       bool   `gorm:"default:false;index" json:"failed"`
	FailedReason string `gorm:"size:255" json:"failed_reason,omitempty"`
}
