package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const (
	idempotencyKeyHeader = "idempotency-key"
	idempotencyTTL       = 24 * time.Hour
)

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// withIdempotency выполняет handler один раз на пару (shop_id, idempotency-key). Повтор с тем
// же телом получает сохранённый ответ или ошибку, повтор с другим телом или методом отклоняется.
func withIdempotency[T any](
	s *BillingService,
	ctx context.Context,
	method string,
	shopID string,
	req any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	if s.idemRepo == nil {
		return handler(ctx)
	}

	rawKey, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, err
	}
	key, err := domain.NewIdempotencyKey(shopID, rawKey)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	reqHash, err := buildIdempotencyRequestHash(method, req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := s.idemRepo.Begin(key, method, reqHash, time.Now().UTC().Add(idempotencyTTL))
	if err != nil {
		return replayIdempotency[T](s, err, record)
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		s.cacheIdempotencyFailure(key, runErr)
		return nil, runErr
	}

	if cacheErr := s.cacheIdempotencySuccess(key, resp); cacheErr != nil {
		s.logger.WithError(cacheErr).WithFields(idempotencyFields(key)).Warn("failed to store idempotent success response")
	}
	return resp, nil
}

func replayIdempotency[T any](s *BillingService, beginErr error, record domain.IdempotencyRecord) (*T, error) {
	switch {
	case errors.Is(beginErr, domain.ErrIdempotencyMethodMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used by another method")
	case errors.Is(beginErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(beginErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			if len(record.Response) == 0 {
				return nil, status.Error(codes.Internal, "idempotency cache is empty")
			}
			resp := new(T)
			if err := json.Unmarshal(record.Response, resp); err != nil {
				s.logger.WithError(err).WithFields(idempotencyFields(record.IdempotencyKey)).Warn("failed to decode cached idempotency response")
				return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
			}
			s.logger.WithFields(idempotencyFields(record.IdempotencyKey)).WithField("invoice_id", record.InvoiceID).Debug("replayed cached response")
			return resp, nil
		case domain.IdempotencyStatusProcessing:
			return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
		case domain.IdempotencyStatusFailed:
			return nil, decodeIdempotencyFailure(record)
		default:
			return nil, status.Error(codes.Internal, "unknown idempotency record status")
		}
	default:
		s.logger.WithError(beginErr).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}
}

func idempotencyFields(key domain.IdempotencyKey) log.Fields {
	return log.Fields{"shop_id": key.ShopID, "idempotency_key": key.Key}
}

// invoiceIDOf достаёт счёт из ответа, чтобы запись ключа ссылалась на него.
func invoiceIDOf(resp any) string {
	var invoice *billingv1.Invoice
	switch r := resp.(type) {
	case *billingv1.CreateInvoiceResponse:
		invoice = r.Invoice
	case *billingv1.RecordPaymentResponse:
		invoice = r.Invoice
	case *billingv1.CancelInvoiceResponse:
		invoice = r.Invoice
	}
	if invoice == nil {
		return ""
	}
	return invoice.ID
}

func (s *BillingService) cacheIdempotencySuccess(key domain.IdempotencyKey, resp any) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.idemRepo.Complete(key, invoiceIDOf(resp), data)
}

func (s *BillingService) cacheIdempotencyFailure(key domain.IdempotencyKey, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		s.logger.WithError(err).WithFields(idempotencyFields(key)).Warn("failed to encode idempotency failure payload")
		payload = nil
	}

	if err := s.idemRepo.Fail(key, uint32(code), payload); err != nil {
		s.logger.WithError(err).WithFields(idempotencyFields(key)).Warn("failed to store idempotency failure response")
	}
}

func decodeIdempotencyFailure(record domain.IdempotencyRecord) error {
	const fallback = "previous request with the same idempotency key failed"

	if len(record.Response) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(record.Response, &payload); err == nil {
			if code, ok := grpcCode(int64(payload.Code)); ok {
				if payload.Message == "" {
					payload.Message = fallback
				}
				return status.Error(code, payload.Message)
			}
		}
	}

	if code, ok := grpcCode(int64(record.Code)); ok {
		return status.Error(code, fallback)
	}
	return status.Error(codes.Internal, fallback)
}

// grpcCode проверяет, что значение является ненулевым кодом gRPC.
func grpcCode(value int64) (codes.Code, bool) {
	if value <= int64(codes.OK) || value > int64(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(idempotencyKeyHeader); len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), nil
		}
	}
	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

// buildIdempotencyRequestHash хеширует метод и тело запроса. encoding/json сериализует
// поля структуры в порядке объявления, поэтому хеш детерминирован.
func buildIdempotencyRequestHash(method string, req any) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{':'})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
