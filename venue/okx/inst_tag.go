package okx

import (
	"fmt"

	"github.com/fd1az/go-exc/internal/apperror"
)

// InstType is OKX's closed set of instrument-type tags, ported from
// exc-okx's inst_tag parsing (src/utils/inst_tag.rs): every OKX v5
// endpoint that takes an instType rejects anything outside this set.
type InstType string

const (
	InstTypeSpot    InstType = "SPOT"
	InstTypeMargin  InstType = "MARGIN"
	InstTypeSwap    InstType = "SWAP"
	InstTypeFutures InstType = "FUTURES"
	InstTypeOption  InstType = "OPTION"
)

// ParseInstType maps the neutral tag string the instrument cache passes
// through FetchInstruments onto OKX's closed instType set, rejecting
// anything else instead of silently defaulting to SPOT.
func ParseInstType(tag string) (InstType, error) {
	switch t := InstType(tag); t {
	case InstTypeSpot, InstTypeMargin, InstTypeSwap, InstTypeFutures, InstTypeOption:
		return t, nil
	default:
		return "", apperror.Usage(apperror.CodeInvalidInput, fmt.Sprintf("unrecognized OKX instType %q", tag))
	}
}
