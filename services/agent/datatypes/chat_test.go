// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"
)

func TestChatRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatRequest
		wantErr bool
	}{
		{"minimal", ChatRequest{Message: "hi"}, false},
		{"with session", ChatRequest{Message: "hi", SessionID: "abc"}, false},
		{"mock source", ChatRequest{Message: "hi", DataSource: SourceMock}, false},
		{"ghostfolio source", ChatRequest{Message: "hi", DataSource: SourceGhostfolio}, false},
		{"empty message", ChatRequest{Message: ""}, true},
		{"unknown source", ChatRequest{Message: "hi", DataSource: "yahoo"}, true},
		{"oversized message", ChatRequest{Message: strings.Repeat("a", MaxMessageBytes+1)}, true},
		{"oversized session", ChatRequest{Message: "hi", SessionID: strings.Repeat("s", 129)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChatRequest_Normalize(t *testing.T) {
	req := ChatRequest{Message: "hi"}
	req.Normalize()
	if req.SessionID != DefaultSessionID {
		t.Errorf("SessionID = %q, want %q", req.SessionID, DefaultSessionID)
	}

	req = ChatRequest{Message: "hi", SessionID: "keep"}
	req.Normalize()
	if req.SessionID != "keep" {
		t.Errorf("SessionID = %q, want keep", req.SessionID)
	}
}
