package plan

// Owner identifies whose saved plans an operation reads or writes. An
// account owns its hosted plans. A caller without an account owns only the
// device list of its session; an Owner with neither is the single local
// user of the device.
type Owner struct {
	AccountID string
	SessionID string
}

// Account returns the owner for an authenticated account.
func Account(accountID string) Owner {
	return Owner{AccountID: accountID}
}

// Anonymous reports whether the owner has no account.
func (o Owner) Anonymous() bool {
	return o.AccountID == ""
}
