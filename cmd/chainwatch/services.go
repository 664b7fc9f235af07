package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sourcifyeth/chain-monitor/chainmonitor"
	"github.com/sourcifyeth/chain-monitor/metadata"
)

// httpServices wires the three external collaborators this core leaves out
// of scope (SourceFetcher, VerificationService, RepositoryService) as thin
// HTTP clients against sibling services -- this binary runs alongside those
// services, it does not embed their logic.
type httpServices struct {
	client *http.Client

	sourceFetcherURL string
	verificationURL  string
	repositoryURL    string

	wg sync.WaitGroup
}

func newHTTPServices(sourceFetcherURL, verificationURL, repositoryURL string, timeout time.Duration) *httpServices {
	return &httpServices{
		client:           &http.Client{Timeout: timeout},
		sourceFetcherURL: sourceFetcherURL,
		verificationURL:  verificationURL,
		repositoryURL:    repositoryURL,
	}
}

// Assemble POSTs the decoded source address to the fetcher service and
// invokes callback with whatever it assembled. Runs on its own goroutine so
// it never blocks the caller's bytecode task.
func (s *httpServices) Assemble(ctx context.Context, addr metadata.SourceAddress, callback func(chainmonitor.CheckedContract, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		body, err := json.Marshal(addr)
		if err != nil {
			callback(chainmonitor.CheckedContract{}, fmt.Errorf("chainwatch: marshal source address: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sourceFetcherURL+"/assemble", bytes.NewReader(body))
		if err != nil {
			callback(chainmonitor.CheckedContract{}, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			callback(chainmonitor.CheckedContract{}, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			callback(chainmonitor.CheckedContract{}, fmt.Errorf("chainwatch: source fetcher returned %d", resp.StatusCode))
			return
		}

		var payload json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			callback(chainmonitor.CheckedContract{}, err)
			return
		}

		callback(chainmonitor.CheckedContract{Payload: payload}, nil)
	}()
}

// Stop waits (bounded) for in-flight assemble requests to finish.
func (s *httpServices) Stop() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
	}
}

func (s *httpServices) VerifyDeployed(ctx context.Context, contract chainmonitor.CheckedContract, chainID *big.Int, address common.Address, creatorTxHash common.Hash) (chainmonitor.VerificationOutcome, error) {
	body, err := json.Marshal(struct {
		ChainID       string          `json:"chainId"`
		Address       string          `json:"address"`
		CreatorTxHash string          `json:"creatorTxHash"`
		Contract      json.RawMessage `json:"contract"`
	}{
		ChainID:       chainID.String(),
		Address:       address.Hex(),
		CreatorTxHash: creatorTxHash.Hex(),
		Contract:      asRawMessage(contract.Payload),
	})
	if err != nil {
		return chainmonitor.VerificationOutcome{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.verificationURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return chainmonitor.VerificationOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return chainmonitor.VerificationOutcome{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return chainmonitor.VerificationOutcome{}, fmt.Errorf("chainwatch: verification service returned %d", resp.StatusCode)
	}

	var out struct {
		Matched bool            `json:"matched"`
		Receipt json.RawMessage `json:"receipt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return chainmonitor.VerificationOutcome{}, err
	}

	return chainmonitor.VerificationOutcome{Matched: out.Matched, Receipt: out.Receipt}, nil
}

func (s *httpServices) CheckByChainAndAddress(ctx context.Context, address common.Address, chainID *big.Int) (bool, error) {
	url := fmt.Sprintf("%s/check?chainId=%s&address=%s", s.repositoryURL, chainID.String(), address.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("chainwatch: repository service returned %d", resp.StatusCode)
	}

	var out struct {
		Matches []json.RawMessage `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}

	return len(out.Matches) > 0, nil
}

func (s *httpServices) StoreMatch(ctx context.Context, contract chainmonitor.CheckedContract, outcome chainmonitor.VerificationOutcome) error {
	body, err := json.Marshal(struct {
		Contract json.RawMessage `json:"contract"`
		Outcome  json.RawMessage `json:"outcome"`
	}{
		Contract: asRawMessage(contract.Payload),
		Outcome:  asRawMessage(outcome.Receipt),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.repositoryURL+"/store", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chainwatch: repository service returned %d", resp.StatusCode)
	}
	return nil
}

func asRawMessage(v any) json.RawMessage {
	switch t := v.(type) {
	case nil:
		return json.RawMessage("null")
	case json.RawMessage:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return json.RawMessage("null")
		}
		return b
	}
}
