package pipeline

// CreateMode selects what the create stage does once the agreement exists.
type CreateMode string

const (
	// CreateWorksheet recreates every subscription listed in the worksheet.
	CreateWorksheet CreateMode = "worksheet"
	// CreatePlatformSync asks the vendor platform to synchronise the customer
	// instead of creating subscriptions one by one.
	CreatePlatformSync CreateMode = "platform-sync"
)

// IsValid checks if the mode is known
func (m CreateMode) IsValid() bool {
	switch m {
	case CreateWorksheet, CreatePlatformSync:
		return true
	}
	return false
}

