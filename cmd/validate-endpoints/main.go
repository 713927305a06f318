package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cityforge/webhooks/seed"
)

/* validate-endpoints - Standalone CLI tool to validate endpoints.yaml
 * Usage: go run cmd/validate-endpoints/main.go [endpoints.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	// Get endpoints file path from args or use default
	endpointsFile := "endpoints.yaml"
	if len(os.Args) > 1 {
		endpointsFile = os.Args[1]
	}

	fmt.Printf("Validating endpoints file: %s\n", endpointsFile)
	fmt.Println(strings.Repeat("-", 50))

	params, err := seed.Load(endpointsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d endpoint(s):\n", len(params))

	for i, p := range params {
		fmt.Printf("\n%d. Endpoint: %s\n", i+1, p.Name)
		fmt.Printf("   URL:      %s\n", p.URL)
		fmt.Printf("   Events:   %s\n", strings.Join(p.Events, ", "))
		if p.Secret != "" {
			fmt.Printf("   Secret:   (set)\n")
		}
		if p.Enabled != nil {
			fmt.Printf("   Enabled:  %t\n", *p.Enabled)
		}
		if p.RetryPolicy != nil {
			fmt.Printf("   Max Retries:   %d\n", p.RetryPolicy.MaxRetries)
			fmt.Printf("   Retry Delay:   %ds\n", p.RetryPolicy.RetryDelaySeconds)
			fmt.Printf("   Exponential:   %t\n", p.RetryPolicy.ExponentialBackoff)
		}
		if p.TimeoutSeconds != nil {
			fmt.Printf("   Timeout:  %ds\n", *p.TimeoutSeconds)
		}
	}

	fmt.Printf("\n✓ All endpoints are valid!\n")
	os.Exit(0)
}
