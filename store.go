package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salc/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrNumeroDuplicado is returned when a nota with the same numeronc already
// exists.
var ErrNumeroDuplicado = errors.New("já existe nota de crédito com este número")

// NotaStore wraps credit-note reads and writes over an injected gorm handle.
type NotaStore struct {
	db *gorm.DB
}

func NewNotaStore(db *gorm.DB) *NotaStore {
	return &NotaStore{db: db}
}

// NovaNota is the insert payload for a credit note. It deliberately has no
// saldo field: saldodisponivel belongs to the database trigger, and keeping
// the field out of the type means no code path can ever write it.
type NovaNota struct {
	NumeroNC        string
	DataRecepcao    time.Time
	UGGestora       string
	UGFavorecida    string
	PTRES           string
	NaturezaDespesa string
	FonteRecurso    string
	PI              *string
	ValorTotal      decimal.Decimal
	DataValidade    *time.Time
}

// List returns every nota ordered by reception date, newest first. The
// decimal columns come back from postgres as strings and are coerced into
// decimal.Decimal at the scan boundary, so callers only ever see typed
// values. Always re-reads from the database; there is no cache.
func (s *NotaStore) List(ctx context.Context) ([]models.NotaCredito, error) {
	notas := []models.NotaCredito{}
	if err := s.db.WithContext(ctx).
		Order("datarecepcao DESC").
		Find(&notas).Error; err != nil {
		return nil, fmt.Errorf("list notas: %w", err)
	}
	return notas, nil
}

// Create inserts exactly one nota. saldodisponivel is omitted from the
// statement; the BEFORE INSERT trigger fills it from valortotal.
func (s *NotaStore) Create(ctx context.Context, n NovaNota) (uint, error) {
	row := models.NotaCredito{
		NumeroNC:        n.NumeroNC,
		DataRecepcao:    n.DataRecepcao,
		UGGestora:       n.UGGestora,
		UGFavorecida:    n.UGFavorecida,
		PTRES:           n.PTRES,
		NaturezaDespesa: n.NaturezaDespesa,
		FonteRecurso:    n.FonteRecurso,
		PI:              n.PI,
		ValorTotal:      n.ValorTotal,
		DataValidade:    n.DataValidade,
	}
	if err := s.db.WithContext(ctx).
		Omit("saldodisponivel").
		Create(&row).Error; err != nil {
		if isUniqueConstraintError(err) {
			return 0, ErrNumeroDuplicado
		}
		return 0, fmt.Errorf("create nota: %w", err)
	}
	return row.ID, nil
}

// FindByNumero looks a nota up by its business identifier.
func (s *NotaStore) FindByNumero(ctx context.Context, numero string) (*models.NotaCredito, error) {
	var nota models.NotaCredito
	if err := s.db.WithContext(ctx).Where("numeronc = ?", numero).First(&nota).Error; err != nil {
		return nil, err
	}
	return &nota, nil
}
