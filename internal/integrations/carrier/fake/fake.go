package fake

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/models"
)

// FakeClient accepts every shipment and derives a stable tracking number
// from (prefix, reference), for demo stacks without carrier accounts.
type FakeClient struct {
	prefix string
}

func New(prefix string) *FakeClient { return &FakeClient{prefix: prefix} }

func (f *FakeClient) CreateShipment(ctx context.Context, company *models.Company, req carrier.ShipmentRequest) (carrier.ShipmentResult, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(f.prefix))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(req.Reference))
	num := fmt.Sprintf("%s_%08d", f.prefix, h.Sum32()%100_000_000)

	labels := make([]carrier.Label, 0, len(req.Packages))
	for i := range req.Packages {
		labels = append(labels, carrier.Label{
			Name:    fmt.Sprintf("%s-%d.pdf", num, i+1),
			Content: []byte("%PDF-1.4\n% fake label " + num + "\n"),
		})
	}

	return carrier.ShipmentResult{
		TrackingNumber: num,
		TrackingURL:    "https://tracking.example/" + num,
		Labels:         labels,
	}, nil
}
