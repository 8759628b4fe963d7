package device

import (
	"context"
	"time"
)

// DeviceRepository reads and activates licensed devices. Lookups that match
// nothing return docstore.ErrNotFound.
type DeviceRepository interface {
	GetByIDAndToken(ctx context.Context, deviceID, token string) (*LicensedDevice, error)
	GetByIDAndTherapist(ctx context.Context, deviceID, therapistEmail string) (*LicensedDevice, error)
	Activate(ctx context.Context, id string, companyName, location, therapistEmail string, at time.Time) (int64, error)
}

// ActivityRepository appends to the device activity log.
type ActivityRepository interface {
	Insert(ctx context.Context, entry *ActivityLog) (string, error)
}
