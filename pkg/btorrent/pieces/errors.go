package pieces

import (
	stderrors "errors"
	"fmt"

	"github.com/namvu9/btcore/internal/errors"
)

var (
	ErrInvalidPieceIndex  = stderrors.New("invalid piece index")
	ErrInvalidBlockOffset = stderrors.New("invalid block offset")
	ErrInvalidBlockSize   = stderrors.New("invalid block size")

	// ErrVerificationFailed is returned when a completed
	// piece does not match its hash. The piece's partial
	// state has already been reset when it is returned.
	ErrVerificationFailed = stderrors.New("piece verification failed")
)

func invalidIndex(op errors.Op, index, n int) error {
	return errors.Wrap(fmt.Errorf("%w: %d (pieces: %d)", ErrInvalidPieceIndex, index, n), op, errors.BadArgument)
}

func invalidOffset(op errors.Op, index, begin int) error {
	return errors.Wrap(fmt.Errorf("%w: piece %d offset %d", ErrInvalidBlockOffset, index, begin), op, errors.BadArgument)
}

func invalidSize(op errors.Op, index, want, got int) error {
	return errors.Wrap(fmt.Errorf("%w: piece %d want %d got %d", ErrInvalidBlockSize, index, want, got), op, errors.BadArgument)
}

func verificationFailed(op errors.Op, index int) error {
	return errors.Wrap(fmt.Errorf("%w: piece %d", ErrVerificationFailed, index), op, errors.Verification)
}
