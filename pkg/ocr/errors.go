package ocr

import "errors"

// ErrNoValor is returned when no plausible monetary amount can be extracted.
var ErrNoValor = errors.New("nenhum valor detectado")
