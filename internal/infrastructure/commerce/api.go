package commerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/erp/agreementclone/internal/domain/agreement"
)

// API endpoint paths.
const (
	AgreementsPath    = "/public/v1/commerce/agreements"
	SubscriptionsPath = "/public/v1/commerce/subscriptions"
	ListingsPath      = "/public/v1/catalog/listings"
	LicenseesPath     = "/public/v1/accounts/licensees"
	AuditRecordsPath  = "/public/v1/audit/records"
	maintenancePath   = "/v1/maintenance/authorizations"
)

// auditTimeLayout renders the created-before cutoff of subscription queries.
const auditTimeLayout = "2006-01-02T15:04:05.000Z"

// API exposes the commerce endpoints used by the clone pipeline.
type API struct {
	client *Client
	pages  *Paginator
}

// NewAPI wraps client.
func NewAPI(client *Client) *API {
	return &API{client: client, pages: NewPaginator(client)}
}

func escape(id string) string {
	return url.PathEscape(id)
}

// GetAgreement fetches an agreement.
func (a *API) GetAgreement(ctx context.Context, id string) (agreement.Record, error) {
	return a.client.DoJSON(ctx, Request{Method: http.MethodGet, Path: AgreementsPath + "/" + escape(id)})
}

// GetListing fetches a listing with its authorization.
func (a *API) GetListing(ctx context.Context, id string) (agreement.Record, error) {
	q := NewQuery(ListingsPath+"/"+escape(id)).Select("authorization", "authorization.externalIds")
	return a.client.DoJSON(ctx, Request{Method: http.MethodGet, Path: q.String()})
}

// FindLicensee resolves a licensee of the given seller and client account.
// Exactly one match is required.
func (a *API) FindLicensee(ctx context.Context, licenseeID, sellerID, clientID string) (agreement.Record, error) {
	q := NewQuery(LicenseesPath).Where(And(
		Eq("id", licenseeID),
		Eq("seller.id", sellerID),
		Eq("account.id", clientID),
	))
	page, err := a.client.DoJSON(ctx, Request{Method: http.MethodGet, Path: q.String()})
	if err != nil {
		return nil, err
	}

	data := page.Objects("data")
	switch len(data) {
	case 0:
		return nil, fmt.Errorf("%w: %s for seller %s and client %s", ErrLicenseeNotFound, licenseeID, sellerID, clientID)
	case 1:
		return data[0], nil
	default:
		return nil, fmt.Errorf("%w: %d records for %s, seller %s and client %s",
			ErrLicenseeAmbiguous, len(data), licenseeID, sellerID, clientID)
	}
}

// ActiveSubscriptionsQuery lists the active subscriptions of an agreement
// created before the cutoff, with the fields used by the dump and reprice
// stages.
func ActiveSubscriptionsQuery(agreementID string, before time.Time) Query {
	return NewQuery(SubscriptionsPath).
		Where(And(
			Lt("audit.created.at", before.UTC().Format(auditTimeLayout)),
			Eq("agreement.id", agreementID),
			Eq("status", "active"),
		)).
		Select(
			"agreement",
			"lines",
			"agreement.authorization.externalIds",
			"agreement.listing.priceList",
			"agreement.parameters",
			"agreement.certificates",
			"licensee",
			"buyer",
			"seller",
			"audit",
			"-agreement.subscriptions",
			"-agreement.lines",
		).
		Order("-audit.created.at")
}

// TerminationQuery lists the active subscriptions of an agreement as seen by
// the vendor.
func TerminationQuery(agreementID string) Query {
	return NewQuery(SubscriptionsPath).
		Select("agreement", "agreement.listing.priceList", "audit.created", "audit.updated", "seller.address").
		Where(Eq("status", "active")).
		Where(Eq("agreement.id", agreementID)).
		Order("-audit.created.at")
}

// ListSubscriptions walks every page of q.
func (a *API) ListSubscriptions(ctx context.Context, q Query) Collection {
	return a.pages.All(ctx, q)
}

// GetSubscription fetches a subscription.
func (a *API) GetSubscription(ctx context.Context, id string) (agreement.Record, error) {
	return a.client.DoJSON(ctx, Request{Method: http.MethodGet, Path: SubscriptionsPath + "/" + escape(id)})
}

// CreateAgreement creates an agreement and returns its id.
func (a *API) CreateAgreement(ctx context.Context, payload agreement.Record) (string, error) {
	return a.create(ctx, AgreementsPath, payload)
}

// UpdateAgreement sends a partial agreement update.
func (a *API) UpdateAgreement(ctx context.Context, id string, body agreement.Record) (*Response, error) {
	return a.client.Do(ctx, Request{Method: http.MethodPut, Path: AgreementsPath + "/" + escape(id), Body: body})
}

// CreateSubscription creates a subscription and returns its id.
func (a *API) CreateSubscription(ctx context.Context, payload agreement.Record) (string, error) {
	return a.create(ctx, SubscriptionsPath, payload)
}

// UpdateSubscription sends a subscription update.
func (a *API) UpdateSubscription(ctx context.Context, id string, body agreement.Record) (*Response, error) {
	return a.client.Do(ctx, Request{Method: http.MethodPut, Path: SubscriptionsPath + "/" + escape(id), Body: body})
}

// TerminateSubscription requests the termination of a subscription.
func (a *API) TerminateSubscription(ctx context.Context, id string) (*Response, error) {
	return a.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   SubscriptionsPath + "/" + escape(id) + "/terminate",
		Body:   agreement.Record{"id": id},
	})
}

// AuditObject identifies the audited resource.
type AuditObject struct {
	ID string `json:"id"`
}

// AuditRecord is the body of an audit trail entry.
type AuditRecord struct {
	Event     string         `json:"event"`
	Summary   string         `json:"summary"`
	Details   string         `json:"details"`
	Type      string         `json:"type"`
	Object    AuditObject    `json:"object"`
	Documents map[string]any `json:"documents"`
}

// CreateAuditRecord posts an audit trail entry.
func (a *API) CreateAuditRecord(ctx context.Context, rec AuditRecord) (*Response, error) {
	return a.client.Do(ctx, Request{Method: http.MethodPost, Path: AuditRecordsPath, Body: rec})
}

// SyncCustomer asks the vendor platform to synchronise a customer of an
// authorization. The client must point at the platform tunnel.
func (a *API) SyncCustomer(ctx context.Context, authorizationID, tenantID string, key int64) (*Response, error) {
	path := fmt.Sprintf("%s/%s/customers/%s/sync?synchronizationKey=%d",
		maintenancePath, escape(authorizationID), escape(tenantID), key)
	return a.client.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: agreement.Record{}})
}

func (a *API) create(ctx context.Context, path string, payload agreement.Record) (string, error) {
	rec, err := a.client.DoJSON(ctx, Request{Method: http.MethodPost, Path: path, Body: payload})
	if err != nil {
		return "", err
	}
	id := rec.ID()
	if id == "" {
		return "", fmt.Errorf("%w: POST %s", ErrMissingID, path)
	}
	return id, nil
}
