package billingv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "pos.billing.v1.BillingService"

const (
	BillingService_CreateInvoice_FullMethodName           = "/" + ServiceName + "/CreateInvoice"
	BillingService_RecordPayment_FullMethodName           = "/" + ServiceName + "/RecordPayment"
	BillingService_GetInvoice_FullMethodName              = "/" + ServiceName + "/GetInvoice"
	BillingService_ListInvoices_FullMethodName            = "/" + ServiceName + "/ListInvoices"
	BillingService_ReconcileInvoice_FullMethodName        = "/" + ServiceName + "/ReconcileInvoice"
	BillingService_CancelInvoice_FullMethodName           = "/" + ServiceName + "/CancelInvoice"
	BillingService_GetTimeline_FullMethodName             = "/" + ServiceName + "/GetTimeline"
	BillingService_ListStockDiscrepancies_FullMethodName  = "/" + ServiceName + "/ListStockDiscrepancies"
	BillingService_ResolveStockDiscrepancy_FullMethodName = "/" + ServiceName + "/ResolveStockDiscrepancy"
)

// BillingServiceClient — клиент API биллинга.
type BillingServiceClient interface {
	CreateInvoice(ctx context.Context, in *CreateInvoiceRequest, opts ...grpc.CallOption) (*CreateInvoiceResponse, error)
	RecordPayment(ctx context.Context, in *RecordPaymentRequest, opts ...grpc.CallOption) (*RecordPaymentResponse, error)
	GetInvoice(ctx context.Context, in *GetInvoiceRequest, opts ...grpc.CallOption) (*GetInvoiceResponse, error)
	ListInvoices(ctx context.Context, in *ListInvoicesRequest, opts ...grpc.CallOption) (*ListInvoicesResponse, error)
	ReconcileInvoice(ctx context.Context, in *ReconcileInvoiceRequest, opts ...grpc.CallOption) (*ReconcileInvoiceResponse, error)
	CancelInvoice(ctx context.Context, in *CancelInvoiceRequest, opts ...grpc.CallOption) (*CancelInvoiceResponse, error)
	GetTimeline(ctx context.Context, in *GetTimelineRequest, opts ...grpc.CallOption) (*GetTimelineResponse, error)
	ListStockDiscrepancies(ctx context.Context, in *ListStockDiscrepanciesRequest, opts ...grpc.CallOption) (*ListStockDiscrepanciesResponse, error)
	ResolveStockDiscrepancy(ctx context.Context, in *ResolveStockDiscrepancyRequest, opts ...grpc.CallOption) (*ResolveStockDiscrepancyResponse, error)
}

type billingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewBillingServiceClient создаёт клиента; JSON-кодек выбирается для каждого вызова.
func NewBillingServiceClient(cc grpc.ClientConnInterface) BillingServiceClient {
	return &billingServiceClient{cc: cc}
}

func (c *billingServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	callOpts := make([]grpc.CallOption, 0, len(opts)+1)
	callOpts = append(callOpts, CallOption())
	callOpts = append(callOpts, opts...)
	return c.cc.Invoke(ctx, method, in, out, callOpts...)
}

func (c *billingServiceClient) CreateInvoice(ctx context.Context, in *CreateInvoiceRequest, opts ...grpc.CallOption) (*CreateInvoiceResponse, error) {
	out := new(CreateInvoiceResponse)
	if err := c.invoke(ctx, BillingService_CreateInvoice_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *billingServiceClient) RecordPayment(ctx context.Context, in *RecordPaymentRequest, opts ...grpc.CallOption) (*RecordPaymentResponse, error) {
	out := new(RecordPaymentResponse)
	if err := c.invoke(ctx, BillingService_RecordPayment_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *billingServiceClient) GetInvoice(ctx context.Context, in *GetInvoiceRequest, opts ...grpc.CallOption) (*GetInvoiceResponse, error) {
	out := new(GetInvoiceResponse)
	if err := c.invoke(ctx, BillingService_GetInvoice_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *billingServiceClient) ListInvoices(ctx context.Context, in *ListInvoicesRequest, opts ...grpc.CallOption) (*ListInvoicesResponse, error) {
	out := new(ListInvoicesResponse)
	if err := c.invoke(ctx, BillingService_ListInvoices_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *billingServiceClient) ReconcileInvoice(ctx context.Context, in *ReconcileInvoiceRequest, opts ...grpc.CallOption) (*ReconcileInvoiceResponse, error) {
	out := new(ReconcileInvoiceResponse)
	if err := c.invoke(ctx, BillingService_ReconcileInvoice_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *billingServiceClient) CancelInvoice(ctx context.Context, in *CancelInvoiceRequest, opts ...grpc.CallOption) (*CancelInvoiceResponse, error) {
	out := new(CancelInvoiceResponse)
	if err := c.invoke(ctx, BillingService_CancelInvoice_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *billingServiceClient) GetTimeline(ctx context.Context, in *GetTimelineRequest, opts ...grpc.CallOption) (*GetTimelineResponse, error) {
	out := new(GetTimelineResponse)
	if err := c.invoke(ctx, BillingService_GetTimeline_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *billingServiceClient) ListStockDiscrepancies(ctx context.Context, in *ListStockDiscrepanciesRequest, opts ...grpc.CallOption) (*ListStockDiscrepanciesResponse, error) {
	out := new(ListStockDiscrepanciesResponse)
	if err := c.invoke(ctx, BillingService_ListStockDiscrepancies_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *billingServiceClient) ResolveStockDiscrepancy(ctx context.Context, in *ResolveStockDiscrepancyRequest, opts ...grpc.CallOption) (*ResolveStockDiscrepancyResponse, error) {
	out := new(ResolveStockDiscrepancyResponse)
	if err := c.invoke(ctx, BillingService_ResolveStockDiscrepancy_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// BillingServiceServer — серверная часть API биллинга.
type BillingServiceServer interface {
	CreateInvoice(context.Context, *CreateInvoiceRequest) (*CreateInvoiceResponse, error)
	RecordPayment(context.Context, *RecordPaymentRequest) (*RecordPaymentResponse, error)
	GetInvoice(context.Context, *GetInvoiceRequest) (*GetInvoiceResponse, error)
	ListInvoices(context.Context, *ListInvoicesRequest) (*ListInvoicesResponse, error)
	ReconcileInvoice(context.Context, *ReconcileInvoiceRequest) (*ReconcileInvoiceResponse, error)
	CancelInvoice(context.Context, *CancelInvoiceRequest) (*CancelInvoiceResponse, error)
	GetTimeline(context.Context, *GetTimelineRequest) (*GetTimelineResponse, error)
	ListStockDiscrepancies(context.Context, *ListStockDiscrepanciesRequest) (*ListStockDiscrepanciesResponse, error)
	ResolveStockDiscrepancy(context.Context, *ResolveStockDiscrepancyRequest) (*ResolveStockDiscrepancyResponse, error)
	mustEmbedUnimplementedBillingServiceServer()
}

// UnimplementedBillingServiceServer возвращает Unimplemented для всех методов.
type UnimplementedBillingServiceServer struct{}

func (UnimplementedBillingServiceServer) CreateInvoice(context.Context, *CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateInvoice not implemented")
}

func (UnimplementedBillingServiceServer) RecordPayment(context.Context, *RecordPaymentRequest) (*RecordPaymentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RecordPayment not implemented")
}

func (UnimplementedBillingServiceServer) GetInvoice(context.Context, *GetInvoiceRequest) (*GetInvoiceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetInvoice not implemented")
}

func (UnimplementedBillingServiceServer) ListInvoices(context.Context, *ListInvoicesRequest) (*ListInvoicesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListInvoices not implemented")
}

func (UnimplementedBillingServiceServer) ReconcileInvoice(context.Context, *ReconcileInvoiceRequest) (*ReconcileInvoiceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ReconcileInvoice not implemented")
}

func (UnimplementedBillingServiceServer) CancelInvoice(context.Context, *CancelInvoiceRequest) (*CancelInvoiceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelInvoice not implemented")
}

func (UnimplementedBillingServiceServer) GetTimeline(context.Context, *GetTimelineRequest) (*GetTimelineResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTimeline not implemented")
}

func (UnimplementedBillingServiceServer) ListStockDiscrepancies(context.Context, *ListStockDiscrepanciesRequest) (*ListStockDiscrepanciesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListStockDiscrepancies not implemented")
}

func (UnimplementedBillingServiceServer) ResolveStockDiscrepancy(context.Context, *ResolveStockDiscrepancyRequest) (*ResolveStockDiscrepancyResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ResolveStockDiscrepancy not implemented")
}

func (UnimplementedBillingServiceServer) mustEmbedUnimplementedBillingServiceServer() {}

// RegisterBillingServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterBillingServiceServer(s grpc.ServiceRegistrar, srv BillingServiceServer) {
	s.RegisterService(&BillingService_ServiceDesc, srv)
}

func _BillingService_CreateInvoice_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateInvoiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).CreateInvoice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BillingService_CreateInvoice_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BillingServiceServer).CreateInvoice(ctx, req.(*CreateInvoiceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_RecordPayment_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RecordPaymentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).RecordPayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BillingService_RecordPayment_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BillingServiceServer).RecordPayment(ctx, req.(*RecordPaymentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_GetInvoice_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetInvoiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).GetInvoice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BillingService_GetInvoice_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BillingServiceServer).GetInvoice(ctx, req.(*GetInvoiceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_ListInvoices_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListInvoicesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).ListInvoices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BillingService_ListInvoices_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BillingServiceServer).ListInvoices(ctx, req.(*ListInvoicesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_ReconcileInvoice_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReconcileInvoiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).ReconcileInvoice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BillingService_ReconcileInvoice_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BillingServiceServer).ReconcileInvoice(ctx, req.(*ReconcileInvoiceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_CancelInvoice_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelInvoiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).CancelInvoice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BillingService_CancelInvoice_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BillingServiceServer).CancelInvoice(ctx, req.(*CancelInvoiceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_GetTimeline_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetTimelineRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).GetTimeline(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BillingService_GetTimeline_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BillingServiceServer).GetTimeline(ctx, req.(*GetTimelineRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_ListStockDiscrepancies_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListStockDiscrepanciesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).ListStockDiscrepancies(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BillingService_ListStockDiscrepancies_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BillingServiceServer).ListStockDiscrepancies(ctx, req.(*ListStockDiscrepanciesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BillingService_ResolveStockDiscrepancy_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResolveStockDiscrepancyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BillingServiceServer).ResolveStockDiscrepancy(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BillingService_ResolveStockDiscrepancy_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BillingServiceServer).ResolveStockDiscrepancy(ctx, req.(*ResolveStockDiscrepancyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// BillingService_ServiceDesc описывает сервис для grpc.Server.
var BillingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BillingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateInvoice",
			Handler:    _BillingService_CreateInvoice_Handler,
		},
		{
			MethodName: "RecordPayment",
			Handler:    _BillingService_RecordPayment_Handler,
		},
		{
			MethodName: "GetInvoice",
			Handler:    _BillingService_GetInvoice_Handler,
		},
		{
			MethodName: "ListInvoices",
			Handler:    _BillingService_ListInvoices_Handler,
		},
		{
			MethodName: "ReconcileInvoice",
			Handler:    _BillingService_ReconcileInvoice_Handler,
		},
		{
			MethodName: "CancelInvoice",
			Handler:    _BillingService_CancelInvoice_Handler,
		},
		{
			MethodName: "GetTimeline",
			Handler:    _BillingService_GetTimeline_Handler,
		},
		{
			MethodName: "ListStockDiscrepancies",
			Handler:    _BillingService_ListStockDiscrepancies_Handler,
		},
		{
			MethodName: "ResolveStockDiscrepancy",
			Handler:    _BillingService_ResolveStockDiscrepancy_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pos/billing/v1/billing_service",
}
