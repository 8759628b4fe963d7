package device

import (
	"context"
	"time"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/docstore"
)

type deviceRepoDoc struct{ coll docstore.Collection }

func NewDeviceRepoDoc(store docstore.Store) DeviceRepository {
	return &deviceRepoDoc{coll: store.Collection(docstore.Devices)}
}

func (r *deviceRepoDoc) findOne(ctx context.Context, f docstore.Filter) (*LicensedDevice, error) {
	doc, err := r.coll.FindOne(ctx, f)
	if err != nil {
		return nil, err
	}
	var d LicensedDevice
	if err := doc.Decode(&d); err != nil {
		return nil, apperr.Inconsistent("licensed device %s: %v", doc.ID, err)
	}
	d.ID = doc.ID
	return &d, nil
}

func (r *deviceRepoDoc) GetByIDAndToken(ctx context.Context, deviceID, token string) (*LicensedDevice, error) {
	return r.findOne(ctx, docstore.And(docstore.Eq("device_id", deviceID), docstore.Eq("token", token)))
}

func (r *deviceRepoDoc) GetByIDAndTherapist(ctx context.Context, deviceID, therapistEmail string) (*LicensedDevice, error) {
	return r.findOne(ctx, docstore.And(docstore.Eq("device_id", deviceID), docstore.Eq("therapist_email", therapistEmail)))
}

func (r *deviceRepoDoc) Activate(ctx context.Context, id string, companyName, location, therapistEmail string, at time.Time) (int64, error) {
	return r.coll.UpdateOne(ctx, docstore.ByID(id),
		docstore.Set("company_name", companyName).
			Set("location_scanned", location).
			Set("therapist_email", therapistEmail).
			Set("license_activated", Timestamp{at}),
	)
}

type activityRepoDoc struct{ coll docstore.Collection }

func NewActivityRepoDoc(store docstore.Store) ActivityRepository {
	return &activityRepoDoc{coll: store.Collection(docstore.DeviceActivity)}
}

func (r *activityRepoDoc) Insert(ctx context.Context, entry *ActivityLog) (string, error) {
	return r.coll.InsertOne(ctx, entry)
}
