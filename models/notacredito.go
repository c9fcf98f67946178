package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotaCredito is a budget credit note received by the unit. Column names
// mirror the SIAFI-style vocabulary used on the printed document so the
// table reads the same way the seção fala about it.
//
// SaldoDisponivel is owned by the database: a BEFORE INSERT trigger
// initializes it to ValorTotal and the application never writes it.
type NotaCredito struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time       `json:"-"`
	UpdatedAt       time.Time       `json:"-"`
	NumeroNC        string          `gorm:"column:numeronc;size:16;uniqueIndex;not null" json:"numeronc"`
	DataRecepcao    time.Time       `gorm:"column:datarecepcao;type:date;index;not null" json:"datarecepcao"`
	UGGestora       string          `gorm:"column:ug_gestora;size:6;not null" json:"ug_gestora"`
	UGFavorecida    string          `gorm:"column:ug_favorecida;size:6;not null" json:"ug_favorecida"`
	PTRES           string          `gorm:"column:ptres;size:8;not null" json:"ptres"`
	NaturezaDespesa string          `gorm:"column:naturezadespesa;size:8;not null" json:"naturezadespesa"`
	FonteRecurso    string          `gorm:"column:fonterecurso;size:10;not null" json:"fonterecurso"`
	PI              *string         `gorm:"column:pi;size:16" json:"pi"`
	ValorTotal      decimal.Decimal `gorm:"column:valortotal;type:numeric(14,2);not null" json:"valortotal"`
	SaldoDisponivel decimal.Decimal `gorm:"column:saldodisponivel;type:numeric(14,2);not null;default:0" json:"saldodisponivel"`
	DataValidade    *time.Time      `gorm:"column:datavalidade;type:date" json:"datavalidade"`
}

// TableName keeps the legacy table name used by the seção's spreadsheets-era
// import scripts.
func (NotaCredito) TableName() string { return "notas_credito" }
