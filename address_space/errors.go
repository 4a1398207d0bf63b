package address_space

import (
	"github.com/go-errors/errors"
)

var ErrRangeNotIncluded = errors.Errorf("page not included in any area")
var ErrNoMatchingArea = errors.Errorf("no area starts at the given address")
var ErrCritical = errors.Errorf("range touches a critical page")
var ErrHasMappedPortion = errors.Errorf("range overlaps a mapped area")
var ErrHasUnmappedPortion = errors.Errorf("range has an unmapped portion")

func wrap(err error) *errors.Error {
	if err != nil {
		return errors.Wrap(err, 1)
	}
	return nil
}
