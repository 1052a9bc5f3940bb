// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command tokentree indexes token sequences and finds the texts that
// contain a given run of tokens.
//
// Usage:
//
//	tokentree search --corpus texts.yaml e2 e3
//	tokentree stats --dir ./corpus
//	tokentree serve --config tokentree.yaml --addr :8080 --watch
//
// Example requests against `tokentree serve`:
//
//	curl -X POST http://localhost:8080/v1/texts \
//	  -H "Content-Type: application/json" \
//	  -d '{"id": "t1", "tokens": ["e1", "e2", "e3"]}'
//
//	curl -X POST http://localhost:8080/v1/search \
//	  -H "Content-Type: application/json" \
//	  -d '{"tokens": ["e2", "e3"]}'
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
