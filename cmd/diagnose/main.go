package main

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/zoemaddison050/leadership-summit/internal/pkg/env"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/payment"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/security"
)

const connectivityAttempts = 3

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	client := &http.Client{Timeout: 10 * time.Second}

	var err error
	switch os.Args[1] {
	case "probe":
		err = runProbe(client, base)
	case "connectivity":
		err = runConnectivity(client, base)
	case "signtest":
		err = runSignatureTest()
	case "metrics":
		err = runMetrics(client, base)
	case "reset":
		err = runReset(client, base)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "diagnose %s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// runProbe checks that the webhook endpoint is reachable from outside.
func runProbe(client *http.Client, base string) error {
	url := base + "/payment/unipayment/webhook"
	for _, method := range []string{http.MethodHead, http.MethodOptions} {
		req, err := http.NewRequest(method, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, url, err)
		}
		resp.Body.Close()
		fmt.Printf("%s %s -> %d\n", method, url, resp.StatusCode)
		if resp.StatusCode >= 400 {
			return fmt.Errorf("webhook endpoint not accessible (status %d)", resp.StatusCode)
		}
	}
	fmt.Println("webhook endpoint accessible")
	return nil
}

// runConnectivity checks the health endpoint with bounded retries.
func runConnectivity(client *http.Client, base string) error {
	url := base + "/api/v1/payment/health"
	var lastErr error
	for attempt := 1; attempt <= connectivityAttempts; attempt++ {
		resp, err := client.Get(url)
		if err == nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			fmt.Printf("attempt %d: %d %s\n", attempt, resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode < 500 {
				return nil
			}
			lastErr = fmt.Errorf("health endpoint returned %d", resp.StatusCode)
		} else {
			lastErr = err
			fmt.Printf("attempt %d: %v\n", attempt, err)
		}
		if attempt < connectivityAttempts {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}
	return lastErr
}

// runSignatureTest signs a random payload and validates it locally,
// exercising the same code path the webhook handler uses.
func runSignatureTest() error {
	secret := env.GetEnv("UNIPAYMENT_WEBHOOK_SECRET", "")
	if secret == "" {
		return fmt.Errorf("UNIPAYMENT_WEBHOOK_SECRET is not set")
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	payloadBody := fmt.Sprintf(`{"invoice_id":"selftest-%s","status":"Confirmed"}`, hex.EncodeToString(nonce))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payloadBody))
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	validator := payment.NewSignatureValidator(security.NewAuditLogger(os.Stderr))
	result := validator.Validate([]byte(payloadBody), signature, secret)
	if !result.Verified {
		return fmt.Errorf("round trip failed: %v", result.Err)
	}

	// A mutated payload must be rejected.
	mutated := []byte(strings.Replace(payloadBody, "Confirmed", "confirmeD", 1))
	if tampered := validator.Validate(mutated, signature, secret); tampered.Valid {
		return fmt.Errorf("tampered payload unexpectedly accepted")
	}

	fmt.Println("signature round trip ok")
	return nil
}

func runMetrics(client *http.Client, base string) error {
	resp, err := client.Get(base + "/api/v1/payment/metrics")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	fmt.Println(string(body))
	return nil
}

func runReset(client *http.Client, base string) error {
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/admin/payment/metrics/reset", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(env.GetEnv("ADMIN_USER", "admin"), env.GetEnv("ADMIN_PASSWORD", "admin"))
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset returned %d", resp.StatusCode)
	}
	fmt.Println("counters reset")
	return nil
}

func printUsage() {
	fmt.Println("Usage: diagnose <probe|connectivity|signtest|metrics|reset>")
}
