package main

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var (
	numeroNCRE = regexp.MustCompile(`^\d{4}NC\d{6}$`)
	digitosRE  = regexp.MustCompile(`^\d+$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their json name so messages line up with the payload
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("digitos", func(fl validator.FieldLevel) bool {
		return digitosRE.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("numeronc", func(fl validator.FieldLevel) bool {
		return numeroNCRE.MatchString(fl.Field().String())
	})
	return v
}

// NotaForm is the create-nota request body. Every field arrives as a string
// the way the form sends it; Validate checks them, Normalize converts them
// into the typed insert payload.
type NotaForm struct {
	NumeroNC        string `json:"numeronc" validate:"required,min=5,numeronc"`
	DataRecepcao    string `json:"datarecepcao" validate:"required"`
	UGGestora       string `json:"ug_gestora" validate:"required,len=6,digitos"`
	UGFavorecida    string `json:"ug_favorecida" validate:"required,len=6,digitos"`
	PTRES           string `json:"ptres" validate:"required,max=8"`
	NaturezaDespesa string `json:"naturezadespesa" validate:"required,digitos,min=6,max=8"`
	FonteRecurso    string `json:"fonterecurso" validate:"required,digitos,max=10"`
	PI              string `json:"pi" validate:"omitempty,max=16"`
	ValorTotal      string `json:"valortotal" validate:"required"`
	DataValidade    string `json:"datavalidade"`
}

// one message per field, mirroring the form labels
var mensagens = map[string]string{
	"numeronc":        "Número da NC inválido (formato 2025NC000123).",
	"datarecepcao":    "Data de recepção inválida.",
	"ug_gestora":      "UG Gestora deve ter 6 dígitos.",
	"ug_favorecida":   "UG Favorecida deve ter 6 dígitos.",
	"ptres":           "PTRES é obrigatório.",
	"naturezadespesa": "Natureza de Despesa deve ter no mínimo 6 dígitos.",
	"fonterecurso":    "Fonte de Recurso inválida.",
	"pi":              "Plano Interno muito longo.",
	"valortotal":      "Valor inválido (use até 2 casas decimais, maior que zero).",
	"datavalidade":    "Data de validade inválida.",
}

// Validate checks all fields locally and returns one message per invalid
// field. An empty result means the form may be normalized and submitted; no
// store call happens while this is non-empty.
func (f *NotaForm) Validate() map[string]string {
	erros := map[string]string{}
	if err := validate.Struct(f); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) {
			for _, fe := range ves {
				name := fe.Field()
				if _, ok := erros[name]; !ok {
					erros[name] = mensagemCampo(name)
				}
			}
		}
	}
	if _, ok := erros["datarecepcao"]; !ok {
		if _, err := time.Parse(dateLayout, f.DataRecepcao); err != nil {
			erros["datarecepcao"] = mensagemCampo("datarecepcao")
		}
	}
	if _, ok := erros["valortotal"]; !ok {
		if _, err := ParseValorBR(f.ValorTotal); err != nil {
			erros["valortotal"] = mensagemCampo("valortotal")
		}
	}
	if strings.TrimSpace(f.DataValidade) != "" {
		if _, err := time.Parse(dateLayout, f.DataValidade); err != nil {
			erros["datavalidade"] = mensagemCampo("datavalidade")
		}
	}
	return erros
}

func mensagemCampo(name string) string {
	if m, ok := mensagens[name]; ok {
		return m
	}
	return fmt.Sprintf("Campo %s inválido.", name)
}

// Normalize converts the validated form into the insert payload: dates become
// calendar dates, the amount becomes a decimal, blank optionals become nil.
// Call only after Validate returned no errors.
func (f *NotaForm) Normalize() (NovaNota, error) {
	dr, err := time.Parse(dateLayout, f.DataRecepcao)
	if err != nil {
		return NovaNota{}, fmt.Errorf("datarecepcao: %w", err)
	}
	valor, err := ParseValorBR(f.ValorTotal)
	if err != nil {
		return NovaNota{}, fmt.Errorf("valortotal: %w", err)
	}
	var pi *string
	if s := strings.TrimSpace(f.PI); s != "" {
		pi = &s
	}
	var dv *time.Time
	if s := strings.TrimSpace(f.DataValidade); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return NovaNota{}, fmt.Errorf("datavalidade: %w", err)
		}
		dv = &t
	}
	return NovaNota{
		NumeroNC:        strings.TrimSpace(f.NumeroNC),
		DataRecepcao:    dr,
		UGGestora:       f.UGGestora,
		UGFavorecida:    f.UGFavorecida,
		PTRES:           strings.TrimSpace(f.PTRES),
		NaturezaDespesa: f.NaturezaDespesa,
		FonteRecurso:    f.FonteRecurso,
		PI:              pi,
		ValorTotal:      valor,
		DataValidade:    dv,
	}, nil
}
