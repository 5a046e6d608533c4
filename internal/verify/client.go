package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "backend-touchgrass/internal/verify"
	entryPoint          = "verify_ultra_starknet_honk_proof"
	defaultTimeout      = 30 * time.Second
)

// Client performs read-only verifier calls against a Starknet JSON-RPC node.
type Client struct {
	rpcURL   string
	contract string
	timeout  time.Duration
}

func NewClient(rpcURL, contract string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{rpcURL: rpcURL, contract: contract, timeout: timeout}
}

// Verify calls the verifier with proof as a single span argument and returns
// the contract's return values as decimal strings.
func (c *Client) Verify(ctx context.Context, proof []string) (Result, error) {
	_, span := otel.Tracer(instrumentationName).Start(ctx, "verify.proof",
		trace.WithAttributes(attribute.Int("proof.len", len(proof))))
	defer span.End()

	res, err := c.call(proof)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	return res, nil
}

func (c *Client) call(proof []string) (Result, error) {
	calldata := make([]string, 0, len(proof)+1)
	calldata = append(calldata, "0x"+strconv.FormatInt(int64(len(proof)), 16))
	for _, v := range proof {
		felt, err := toFelt(v)
		if err != nil {
			return Result{}, err
		}
		calldata = append(calldata, felt)
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "starknet_call",
		Params: callParams{
			Request: functionCall{
				ContractAddress:    c.contract,
				EntryPointSelector: Selector(entryPoint),
				Calldata:           calldata,
			},
			BlockID: "latest",
		},
	})
	if err != nil {
		return Result{}, err
	}

	code, resp, errs := fiber.Post(c.rpcURL).
		Timeout(c.timeout).
		ContentType(fiber.MIMEApplicationJSON).
		Body(body).
		Bytes()
	if len(errs) > 0 {
		return Result{}, fmt.Errorf("starknet rpc: %w", errors.Join(errs...))
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		return Result{}, fmt.Errorf("starknet rpc: unexpected status %d", code)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(resp, &decoded); err != nil {
		return Result{}, fmt.Errorf("starknet rpc: decode response: %w", err)
	}
	if decoded.Error != nil {
		return Result{}, decoded.Error
	}

	values := make([]string, 0, len(decoded.Result))
	for _, v := range decoded.Result {
		values = append(values, toDecimal(v))
	}
	return Result{Values: values}, nil
}
