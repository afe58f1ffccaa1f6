// Package compat decides whether a job can run on a device.
//
// The constraints live in the job's free-form Info map and are checked
// against the device's bound accounts, a relation no store query can
// express. The engine therefore claims coarsely and validates afterwards.
package compat

import (
	"github.com/DiOS-Analysis/Backend/account"
	"github.com/DiOS-Analysis/Backend/device"
	"github.com/DiOS-Analysis/Backend/job"
)

// IsCompatible reports whether j may execute on d. The first matching rule
// decides:
//
//  1. jobs other than run_app are always compatible;
//  2. with an accountId, some bound account must carry that identifier
//     (storeCountry is then ignored);
//  3. with a storeCountry, some bound account must be in that country;
//  4. otherwise the job is compatible.
//
// A constraint value that is not a string or number matches no account.
func IsCompatible(j *job.Job, d device.Snapshot) bool {
	if j.Type != job.TypeRunApp {
		return true
	}

	if j.Info.Has(job.InfoAccountID) {
		want, ok := j.Info.Lookup(job.InfoAccountID)
		return ok && d.HasAccount(func(a account.Account) bool {
			return a.UniqueIdentifier == want
		})
	}

	if j.Info.Has(job.InfoStoreCountry) {
		want, ok := j.Info.Lookup(job.InfoStoreCountry)
		return ok && d.HasAccount(func(a account.Account) bool {
			return a.StoreCountry == want
		})
	}

	return true
}
