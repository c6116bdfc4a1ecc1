package runfile

import "github.com/hashicorp/go-multierror"

// joinErrors aggregates the independent close/remove failures that can
// happen while tearing down several files at once, the way s5cmd's error
// package walks a *multierror.Error for cancellation handling.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	var merr *multierror.Error
	for _, err := range errs {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}
