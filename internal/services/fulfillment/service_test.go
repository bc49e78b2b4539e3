package fulfillment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations"
	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/integrations/shopify"
	"github.com/BearBump/OrderBox/internal/metrics"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/storage/pgorders"
	"github.com/BearBump/OrderBox/internal/validation"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type fakeRepo struct {
	templates map[uint64]*models.PackageTemplate
	shipments []pgorders.ShipmentRecord
	orders    map[uint64]*models.Order
	statusErr error
}

func (r *fakeRepo) GetPackageTemplate(ctx context.Context, companyID, id uint64) (*models.PackageTemplate, error) {
	t, ok := r.templates[id]
	if !ok || t.CompanyID != companyID {
		return nil, models.ErrNotFound
	}
	return t, nil
}

func (r *fakeRepo) UpsertShipment(ctx context.Context, rec pgorders.ShipmentRecord) (*models.Order, error) {
	r.shipments = append(r.shipments, rec)
	o := &models.Order{
		ID:          uint64(len(r.shipments)),
		CompanyID:   rec.CompanyID,
		ShopifyID:   rec.ShopifyID,
		ShippingID:  rec.ShippingID,
		TrackingURL: rec.TrackingURL,
		Carrier:     rec.Carrier,
		Status:      models.OrderStatusUnfulfilled,
	}
	r.orders[o.ID] = o
	return o, nil
}

func (r *fakeRepo) SetOrderStatus(ctx context.Context, orderID uint64, status string) error {
	if r.statusErr != nil {
		return r.statusErr
	}
	r.orders[orderID].Status = status
	return nil
}

type mockCarrier struct {
	mock.Mock
}

func (m *mockCarrier) CreateShipment(ctx context.Context, company *models.Company, req carrier.ShipmentRequest) (carrier.ShipmentResult, error) {
	args := m.Called(ctx, company, req)
	return args.Get(0).(carrier.ShipmentResult), args.Error(1)
}

type mockPlatform struct {
	mock.Mock
}

func (m *mockPlatform) GetOrder(ctx context.Context, creds shopify.Credentials, id int64) (*shopify.Order, error) {
	args := m.Called(ctx, creds, id)
	o, _ := args.Get(0).(*shopify.Order)
	return o, args.Error(1)
}

func (m *mockPlatform) FulfillOrder(ctx context.Context, creds shopify.Credentials, orderID int64, f shopify.Fulfillment) error {
	args := m.Called(ctx, creds, orderID, f)
	return args.Error(0)
}

type FulfillmentSuite struct {
	suite.Suite

	company  *models.Company
	repo     *fakeRepo
	dhl      *mockCarrier
	ef       *mockCarrier
	platform *mockPlatform
	svc      *Service
}

func (s *FulfillmentSuite) SetupTest() {
	s.company = &models.Company{
		ID:                1,
		Name:              "Salsa Verde",
		ShopifyDomain:     "salsa.myshopify.com",
		ShopifyAPIKey:     "k",
		ShopifyPassword:   "p",
		ShopifyLocationID: 5032451,
	}
	s.repo = &fakeRepo{
		templates: map[uint64]*models.PackageTemplate{
			9: {ID: 9, CompanyID: 1, Name: "Small box", Length: decimal.NewFromInt(300), Width: decimal.NewFromInt(200), Height: decimal.NewFromInt(105)},
		},
		orders: map[uint64]*models.Order{},
	}
	s.dhl = &mockCarrier{}
	s.ef = &mockCarrier{}
	s.platform = &mockPlatform{}
	s.svc = New(s.repo, s.platform, map[string]carrier.Client{
		models.CarrierDHL:            s.dhl,
		models.CarrierExpressFreight: s.ef,
	}, metrics.New())
	s.svc.now = func() time.Time { return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) }
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func box() PackageRow {
	return PackageRow{Length: dec("30"), Width: dec("20"), Height: dec("10"), Weight: dec("1.5")}
}

func (s *FulfillmentSuite) efForm(shopifyOrder string) *EFForm {
	return &EFForm{
		Address: Address{
			ShopifyOrder: shopifyOrder,
			Name:         "Jo Bloggs",
			Phone:        "+353 (87) 123-4567",
			FirstLine:    "5, High St.",
			Town:         "Dublin",
			Postcode:     "D08 X1Y2",
			DispatchDate: "2024-03-05",
		},
		Region: "DUBLIN",
		County: "D8",
	}
}

func pending(id int64) *shopify.Order {
	return &shopify.Order{ID: id}
}

func (s *FulfillmentSuite) TestCreateShipment_CarrierFailure_StoresNothing() {
	s.platform.On("GetOrder", mock.Anything, mock.Anything, int64(4501)).Return(pending(4501), nil).Once()
	s.ef.On("CreateShipment", mock.Anything, s.company, mock.Anything).
		Return(carrier.ShipmentResult{}, &integrations.HTTPError{Service: "express_freight", StatusCode: 500}).Once()

	out, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form:     s.efForm("4501"),
		Packages: []PackageRow{box()},
	})
	s.Require().Nil(out)
	var cErr *CarrierError
	s.Require().True(errors.As(err, &cErr))
	s.Require().Equal(models.CarrierExpressFreight, cErr.Carrier)
	s.Require().Empty(s.repo.shipments)
	s.platform.AssertNotCalled(s.T(), "FulfillOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *FulfillmentSuite) TestCreateShipment_CallbackFailure_KeepsUnfulfilledOrder() {
	s.platform.On("GetOrder", mock.Anything, mock.Anything, int64(4501)).Return(pending(4501), nil).Once()
	s.ef.On("CreateShipment", mock.Anything, s.company, mock.Anything).Return(carrier.ShipmentResult{
		TrackingNumber: "EF123",
		TrackingURL:    "https://ef.example/EF123",
		Labels:         []carrier.Label{{Name: "l.pdf", Content: []byte("%PDF")}},
	}, nil).Once()
	s.platform.On("FulfillOrder", mock.Anything, mock.Anything, int64(4501), mock.Anything).
		Return(&integrations.HTTPError{Service: "shopify", StatusCode: 422}).Once()

	out, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form:     s.efForm("4501"),
		Packages: []PackageRow{box()},
	})
	var fErr *FulfillmentCallbackError
	s.Require().True(errors.As(err, &fErr))
	s.Require().Equal(int64(4501), fErr.ShopifyOrderID)

	s.Require().NotNil(out)
	s.Require().False(out.Fulfilled)
	s.Require().Len(s.repo.shipments, 1)
	rec := s.repo.shipments[0]
	s.Require().Equal("EF123", rec.ShippingID)
	s.Require().Equal(int64(4501), *rec.ShopifyID)
	s.Require().Len(rec.Labels, 1)
	s.Require().Equal(models.OrderStatusUnfulfilled, s.repo.orders[out.Order.ID].Status)
}

func (s *FulfillmentSuite) TestCreateShipment_StatusWriteFailure_ReturnsOutcome() {
	s.repo.statusErr = errors.New("connection reset")
	s.platform.On("GetOrder", mock.Anything, mock.Anything, int64(4501)).Return(pending(4501), nil).Once()
	s.ef.On("CreateShipment", mock.Anything, s.company, mock.Anything).
		Return(carrier.ShipmentResult{TrackingNumber: "EF124"}, nil).Once()
	s.platform.On("FulfillOrder", mock.Anything, mock.Anything, int64(4501), mock.Anything).Return(nil).Once()

	out, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form:     s.efForm("4501"),
		Packages: []PackageRow{box()},
	})
	var sErr *StatusUpdateError
	s.Require().True(errors.As(err, &sErr))
	s.Require().NotNil(out)
	s.Require().Equal(out.Order.ID, sErr.OrderID)
	s.Require().True(out.Fulfilled)
	s.Require().Equal("EF124", out.TrackingNumber)
	s.Require().Len(s.repo.shipments, 1)
	s.platform.AssertExpectations(s.T())
}

func (s *FulfillmentSuite) TestCreateShipment_FulfillsOnPlatform() {
	uid := uint64(12)
	s.platform.On("GetOrder", mock.Anything, mock.Anything, int64(77)).Return(pending(77), nil).Once()
	s.dhl.On("CreateShipment", mock.Anything, s.company, mock.MatchedBy(func(req carrier.ShipmentRequest) bool {
		return req.ServiceCode == "U" && req.Receiver.CountryCode == "FR" && req.Reference == "77" && len(req.Packages) == 2
	})).Return(carrier.ShipmentResult{TrackingNumber: "DHL1", TrackingURL: "https://dhl.example/DHL1"}, nil).Once()
	s.platform.On("FulfillOrder", mock.Anything, shopify.CredentialsFor(s.company), int64(77), shopify.Fulfillment{
		LocationID:     5032451,
		TrackingNumber: "DHL1",
		TrackingURL:    "https://dhl.example/DHL1",
		NotifyCustomer: true,
	}).Return(nil).Once()

	form := &DHLForm{
		Address: Address{
			ShopifyOrder: "77",
			Name:         gofakeit.Name(),
			Phone:        gofakeit.Phone(),
			FirstLine:    gofakeit.Street(),
			Town:         "Paris",
			Postcode:     "75001",
		},
		ServiceCode: "u",
		Country:     "fr",
	}
	out, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form:     form,
		Packages: []PackageRow{box(), box()},
		UserID:   &uid,
	})
	s.Require().NoError(err)
	s.Require().True(out.Fulfilled)
	s.Require().Equal(models.OrderStatusFulfilled, out.Order.Status)
	s.Require().Equal(models.OrderStatusFulfilled, s.repo.orders[out.Order.ID].Status)
	s.Require().Equal(&uid, s.repo.shipments[0].UserID)
	s.platform.AssertExpectations(s.T())
	s.dhl.AssertExpectations(s.T())
}

func (s *FulfillmentSuite) TestCreateShipment_OrderIDFromInput() {
	s.platform.On("GetOrder", mock.Anything, mock.Anything, int64(4502)).Return(pending(4502), nil).Once()
	s.ef.On("CreateShipment", mock.Anything, s.company, mock.Anything).
		Return(carrier.ShipmentResult{TrackingNumber: "EF200"}, nil).Once()
	s.platform.On("FulfillOrder", mock.Anything, mock.Anything, int64(4502), mock.Anything).Return(nil).Once()

	out, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form:           s.efForm(""),
		Packages:       []PackageRow{box()},
		ShopifyOrderID: 4502,
	})
	s.Require().NoError(err)
	s.Require().True(out.Fulfilled)
	s.Require().Equal(int64(4502), *s.repo.shipments[0].ShopifyID)
	s.platform.AssertExpectations(s.T())
}

func (s *FulfillmentSuite) TestCreateShipment_ManualOrderSkipsPlatform() {
	s.dhl.On("CreateShipment", mock.Anything, s.company, mock.Anything).
		Return(carrier.ShipmentResult{TrackingNumber: "DHL2"}, nil).Once()

	out, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form: &DHLForm{
			Address:     Address{Name: "A", Phone: "1", FirstLine: "x", Town: "Cork", Postcode: "T12"},
			ServiceCode: "N",
			Country:     "IE",
		},
		Packages: []PackageRow{box()},
	})
	s.Require().NoError(err)
	s.Require().False(out.Fulfilled)
	s.Require().Nil(s.repo.shipments[0].ShopifyID)
	s.platform.AssertNotCalled(s.T(), "GetOrder", mock.Anything, mock.Anything, mock.Anything)
	s.platform.AssertNotCalled(s.T(), "FulfillOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *FulfillmentSuite) TestCreateShipment_DublinRegionNeedsDublinCounty() {
	form := s.efForm("")
	form.County = "Co. Cork"

	_, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form:     form,
		Packages: []PackageRow{box()},
	})
	var verr *ValidationError
	s.Require().True(errors.As(err, &verr))
	s.Require().Contains(verr.Fields["county"], "Dublin county")
	s.ef.AssertNotCalled(s.T(), "CreateShipment", mock.Anything, mock.Anything, mock.Anything)
	s.Require().Empty(s.repo.shipments)
}

func (s *FulfillmentSuite) TestCreateShipment_CleansEFFields() {
	var sent carrier.ShipmentRequest
	s.ef.On("CreateShipment", mock.Anything, s.company, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(carrier.ShipmentRequest) }).
		Return(carrier.ShipmentResult{TrackingNumber: "EF1"}, nil).Once()

	_, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form:     s.efForm(""),
		Packages: []PackageRow{box()},
	})
	s.Require().NoError(err)
	s.Require().Equal("00353871234567", sent.Receiver.Phone)
	s.Require().Equal("5 High St", sent.Receiver.Line1)
	s.Require().Equal("D08 X1Y2", sent.Receiver.Postcode)
	s.Require().Equal("DUBLIN 8", sent.Receiver.County)
	s.Require().Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), sent.DispatchDate)
	s.Require().Equal("Order from Salsa Verde", sent.Description)
}

func (s *FulfillmentSuite) TestCreateShipment_ValidationErrors() {
	form := &EFForm{Region: "MARS", County: "Atlantis"}
	_, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form:     form,
		Packages: []PackageRow{{Length: dec("-1"), Width: dec("1"), Height: dec("1")}},
	})
	var verr *ValidationError
	s.Require().True(errors.As(err, &verr))
	for _, field := range []string{"name", "phone", "first_line", "town", "region", "county", "packages[0].length", "packages[0].weight"} {
		s.Require().Contains(verr.Fields, field)
	}

	_, err = s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{Form: s.efForm("")})
	s.Require().True(errors.As(err, &verr))
	s.Require().Contains(verr.Fields, "packages")

	bad := s.efForm("")
	bad.DispatchDate = "next tuesday"
	_, err = s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{Form: bad, Packages: []PackageRow{box()}})
	s.Require().True(errors.As(err, &verr))
	s.Require().Contains(verr.Fields, "dispatch_date")
}

func (s *FulfillmentSuite) TestCreateShipment_TemplateFillsDimensions() {
	var sent carrier.ShipmentRequest
	s.dhl.On("CreateShipment", mock.Anything, s.company, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(carrier.ShipmentRequest) }).
		Return(carrier.ShipmentResult{TrackingNumber: "DHL3"}, nil).Once()

	tpl := uint64(9)
	_, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form: &DHLForm{
			Address:     Address{Name: "A", Phone: "1", FirstLine: "x", Town: "Cork", Postcode: "T12"},
			ServiceCode: "N",
			Country:     "IE",
		},
		Packages: []PackageRow{{PackageTemplateID: &tpl, Height: dec("12"), Weight: dec("2")}},
	})
	s.Require().NoError(err)
	s.Require().Len(sent.Packages, 1)
	p := sent.Packages[0]
	s.Require().True(p.Length.Equal(decimal.NewFromInt(30)))
	s.Require().True(p.Width.Equal(decimal.NewFromInt(20)))
	// explicit values win over the template
	s.Require().True(p.Height.Equal(decimal.NewFromInt(12)))

	missing := uint64(404)
	_, err = s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form: &DHLForm{
			Address:     Address{Name: "A", Phone: "1", FirstLine: "x", Town: "Cork", Postcode: "T12"},
			ServiceCode: "N",
			Country:     "IE",
		},
		Packages: []PackageRow{{PackageTemplateID: &missing, Weight: dec("2")}},
	})
	var verr *validation.Error
	s.Require().True(errors.As(err, &verr))
	s.Require().Contains(verr.Fields, "packages[0].package_template_id")
}

func (s *FulfillmentSuite) TestCreateShipment_AlreadyFulfilled() {
	done := shopify.FulfillmentStatusFulfilled
	s.platform.On("GetOrder", mock.Anything, mock.Anything, int64(4501)).Return(&shopify.Order{ID: 4501, FulfillmentStatus: &done}, nil).Once()

	_, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form:     s.efForm("4501"),
		Packages: []PackageRow{box()},
	})
	s.Require().ErrorIs(err, models.ErrAlreadyFulfilled)
	s.ef.AssertNotCalled(s.T(), "CreateShipment", mock.Anything, mock.Anything, mock.Anything)
}

func (s *FulfillmentSuite) TestCreateShipment_ShopifyOrderNeedsCredentials() {
	s.company.ShopifyAPIKey = ""
	_, err := s.svc.CreateShipment(context.Background(), s.company, ShipmentInput{
		Form:     s.efForm("4501"),
		Packages: []PackageRow{box()},
	})
	var verr *ValidationError
	s.Require().True(errors.As(err, &verr))
	s.Require().Contains(verr.Fields, "shopify_order")
}

func (s *FulfillmentSuite) TestPrefill_ExpressFreight() {
	var o shopify.Order
	s.Require().NoError(json.Unmarshal([]byte(`{
		"id": 4501,
		"fulfillment_status": null,
		"shipping_address": {
			"name": "Jo Bloggs", "address1": "5 High St", "address2": "Apt 2",
			"city": "Dublin", "province": "Dublin", "zip": "D08 X1Y2", "phone": "+353871234567",
			"country_code": "IE"
		}
	}`), &o))
	s.platform.On("GetOrder", mock.Anything, mock.Anything, int64(4501)).Return(&o, nil).Once()

	p, err := s.svc.Prefill(context.Background(), s.company, models.CarrierExpressFreight, 4501)
	s.Require().NoError(err)
	f := p.Form.(*EFForm)
	s.Require().Equal("4501", f.ShopifyOrder)
	s.Require().Equal("Jo Bloggs", f.Name)
	s.Require().Equal(RegionDublin, f.Region)
	s.Require().Equal("DUBLIN 8", f.County)
	s.Require().Equal("2024-03-04", f.DispatchDate)
}

func (s *FulfillmentSuite) TestPrefill_DHL() {
	var o shopify.Order
	s.Require().NoError(json.Unmarshal([]byte(`{
		"id": 10,
		"shipping_address": {"first_name": "Ana", "last_name": "Ruiz", "address1": "1 Rue", "city": "Lyon",
			"province": "Rhone", "zip": "69001", "country_code": "fr"}
	}`), &o))
	s.platform.On("GetOrder", mock.Anything, mock.Anything, int64(10)).Return(&o, nil).Once()

	p, err := s.svc.Prefill(context.Background(), s.company, models.CarrierDHL, 10)
	s.Require().NoError(err)
	f := p.Form.(*DHLForm)
	s.Require().Equal("Ana Ruiz", f.Name)
	s.Require().Equal("FR", f.Country)
	s.Require().Equal("Rhone", f.County)
}

func (s *FulfillmentSuite) TestPrefill_Errors() {
	_, err := s.svc.Prefill(context.Background(), s.company, "ups", 0)
	s.Require().ErrorIs(err, ErrUnknownCarrier)

	done := shopify.FulfillmentStatusFulfilled
	s.platform.On("GetOrder", mock.Anything, mock.Anything, int64(5)).Return(&shopify.Order{ID: 5, FulfillmentStatus: &done}, nil).Once()
	_, err = s.svc.Prefill(context.Background(), s.company, models.CarrierDHL, 5)
	s.Require().ErrorIs(err, models.ErrAlreadyFulfilled)

	p, err := s.svc.Prefill(context.Background(), s.company, models.CarrierDHL, 0)
	s.Require().NoError(err)
	s.Require().Equal("", p.Form.(*DHLForm).ShopifyOrder)

	noShop := *s.company
	noShop.ShopifyAPIKey = ""
	_, err = s.svc.Prefill(context.Background(), &noShop, models.CarrierDHL, 7)
	var verr *ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Require().Contains(verr.Fields, "shopify_order")
}

func TestFulfillmentSuite(t *testing.T) {
	suite.Run(t, new(FulfillmentSuite))
}
