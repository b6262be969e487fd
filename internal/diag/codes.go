package diag

import (
	"fmt"
)

// Code identifies a diagnostic kind. The 7xxx band is user-facing backend
// errors; the 9xxx band is internal compiler errors (never expected on
// well-typed input).
type Code uint16

const (
	UnknownCode Code = 0

	// User-facing backend errors.
	GenBreakOutsideLoop    Code = 7001
	GenContinueOutsideLoop Code = 7002
	GenWhileInPredicate    Code = 7003
	GenUnknownAsmRegister  Code = 7004
	GenAsmShadowsReserved  Code = 7005
	GenAsmReturnMismatch   Code = 7006
	GenAsmBadImmediate     Code = 7007
	GenArrayIndexOOB       Code = 7008
	GenStorageArray        Code = 7009
	GenMissingMain         Code = 7010
	GenUnknownAsmOpcode    Code = 7011

	// Internal compiler errors.
	IceUnknownVariable    Code = 9001
	IceBadStorageType     Code = 9002
	IceGepOnNonAggregate  Code = 9003
	IceOperandMismatch    Code = 9004
	IceUnterminatedBlock  Code = 9005
	IceUseBeforeDef       Code = 9006
	IceBadLoadWidth       Code = 9007
	IceUnknownType        Code = 9008
	IceSequencerExhausted Code = 9009
	IceBadCallArity       Code = 9010
)

func (c Code) String() string {
	return fmt.Sprintf("F%04d", uint16(c))
}

// IsInternal reports whether the code belongs to the internal-compiler-error
// band.
func (c Code) IsInternal() bool {
	return c >= 9000
}
