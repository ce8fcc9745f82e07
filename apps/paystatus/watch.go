package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/smallbiznis/racepay/internal/payment/poll"
	"github.com/spf13/cobra"
)

type verifyResponse struct {
	Success     bool   `json:"success"`
	Verified    bool   `json:"verified"`
	State       string `json:"state"`
	Error       string `json:"error"`
	Transaction struct {
		MerchantOrderID string  `json:"merchantOrderId"`
		Amount          float64 `json:"amount"`
		PaymentMode     string  `json:"paymentMode"`
		TransactionID   string  `json:"transactionId"`
		ErrorCode       string  `json:"errorCode"`
	} `json:"transaction"`
}

func watchCmd() *cobra.Command {
	cfg := poll.DefaultConfig()
	var (
		apiURL         string
		requestTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [merchantOrderId]",
		Short: "Call /verifyPayment on a fixed interval until the order is terminal or the budget runs out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			v := &verifier{
				endpoint: strings.TrimRight(apiURL, "/") + "/verifyPayment",
				client:   &http.Client{Timeout: requestTimeout},
			}
			return watch(ctx, cmd.OutOrStdout(), poll.New(cfg), v, args[0])
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Base URL of the payment API")
	cmd.Flags().DurationVar(&cfg.Interval, "interval", cfg.Interval, "Delay between attempts")
	cmd.Flags().IntVar(&cfg.MaxAttempts, "attempts", cfg.MaxAttempts, "Maximum attempts, including the first")
	cmd.Flags().DurationVar(&cfg.MaxDuration, "max-duration", cfg.MaxDuration, "Wall-clock budget for polling")
	cmd.Flags().DurationVar(&requestTimeout, "request-timeout", 20*time.Second, "Timeout for a single verify call")

	return cmd
}

func watch(ctx context.Context, out io.Writer, p *poll.Poller, v *verifier, orderID string) error {
	var last verifyResponse
	res, err := p.Run(ctx, func(ctx context.Context) (string, error) {
		resp, err := v.verify(ctx, orderID)
		if err != nil {
			return "", err
		}
		last = resp
		fmt.Fprintf(out, "state=%s\n", resp.State)
		return resp.State, nil
	})
	if err != nil {
		return err
	}

	if !res.Settled() {
		fmt.Fprintf(out, "Payment status unknown after %d attempts (%s). It will be confirmed by email once PhonePe reports it.\n",
			res.Attempts, res.Elapsed.Round(time.Second))
		if res.LastErr != nil {
			fmt.Fprintf(out, "last error: %v\n", res.LastErr)
		}
		return fmt.Errorf("%s: %w", orderID, errTimedOut)
	}

	fmt.Fprintf(out, "order %s %s", orderID, res.State)
	if last.Transaction.TransactionID != "" {
		fmt.Fprintf(out, " (transaction %s", last.Transaction.TransactionID)
		if last.Transaction.PaymentMode != "" {
			fmt.Fprintf(out, ", %s", last.Transaction.PaymentMode)
		}
		fmt.Fprint(out, ")")
	}
	if last.Transaction.ErrorCode != "" {
		fmt.Fprintf(out, " reason=%s", last.Transaction.ErrorCode)
	}
	fmt.Fprintln(out)
	return nil
}

type verifier struct {
	endpoint string
	client   *http.Client
}

func (v *verifier) verify(ctx context.Context, orderID string) (verifyResponse, error) {
	body, err := json.Marshal(map[string]string{"merchantOrderId": orderID})
	if err != nil {
		return verifyResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return verifyResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return verifyResponse{}, err
	}
	defer resp.Body.Close()

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return verifyResponse{}, fmt.Errorf("decode verify response (%d): %w", resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return out, nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		// Retrying cannot fix an unknown or malformed order id.
		return verifyResponse{}, fmt.Errorf("%s: %w", out.Error, poll.ErrStop)
	default:
		return verifyResponse{}, fmt.Errorf("verify returned %d: %s", resp.StatusCode, out.Error)
	}
}
