package verify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSelector(t *testing.T) {
	// well-known selector of the ERC20 "transfer" entry point
	want := "0x83afd3f4caedc6eebf44246fe54e38c95e3179a5ec9ea81740eca5b482d12e"
	if got := Selector("transfer"); got != want {
		t.Fatalf("unexpected selector: %s", got)
	}
}

func TestToFelt(t *testing.T) {
	cases := map[string]string{"10": "0xa", "0x1F": "0x1f", " 0 ": "0x0"}
	for in, want := range cases {
		got, err := toFelt(in)
		if err != nil || got != want {
			t.Fatalf("toFelt(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := toFelt("zz"); err == nil {
		t.Fatalf("expected invalid felt error")
	}
	if _, err := toFelt("-1"); err == nil {
		t.Fatalf("expected negative felt error")
	}
}

func rpcServer(t *testing.T, reply string, seen *rpcRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
}

func TestClientVerify(t *testing.T) {
	var seen rpcRequest
	srv := rpcServer(t, `{"jsonrpc":"2.0","id":1,"result":["0x1","0x0"]}`, &seen)
	defer srv.Close()

	client := NewClient(srv.URL, "0x0123", time.Second)
	res, err := client.Verify(context.Background(), []string{"5", "0x10"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(res.Values) != 2 || res.Values[0] != "1" || res.Values[1] != "0" {
		t.Fatalf("unexpected values: %v", res.Values)
	}

	if seen.Method != "starknet_call" {
		t.Fatalf("unexpected method %q", seen.Method)
	}
	params, _ := json.Marshal(seen.Params)
	var call callParams
	_ = json.Unmarshal(params, &call)
	if call.Request.ContractAddress != "0x0123" || call.BlockID != "latest" {
		t.Fatalf("unexpected call params: %+v", call)
	}
	if strings.Join(call.Request.Calldata, ",") != "0x2,0x5,0x10" {
		t.Fatalf("unexpected calldata: %v", call.Request.Calldata)
	}
	if call.Request.EntryPointSelector != Selector(entryPoint) {
		t.Fatalf("unexpected selector")
	}
}

func TestClientVerifyRPCError(t *testing.T) {
	srv := rpcServer(t, `{"jsonrpc":"2.0","id":1,"error":{"code":40,"message":"Contract error"}}`, nil)
	defer srv.Close()

	_, err := NewClient(srv.URL, "0x1", time.Second).Verify(context.Background(), []string{"1"})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != 40 {
		t.Fatalf("expected rpc error, got %v", err)
	}
}

func TestClientVerifyBadInput(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", "0x1", time.Second).Verify(context.Background(), []string{"nope"})
	if err == nil {
		t.Fatalf("expected invalid felt error")
	}
}

func TestClientVerifyBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "0x1", 0).Verify(context.Background(), []string{"1"}); err == nil {
		t.Fatalf("expected status error")
	}
}
