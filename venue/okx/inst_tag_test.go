package okx

import "testing"

func TestParseInstType(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		want    InstType
		wantErr bool
	}{
		{name: "spot", tag: "SPOT", want: InstTypeSpot},
		{name: "margin", tag: "MARGIN", want: InstTypeMargin},
		{name: "swap", tag: "SWAP", want: InstTypeSwap},
		{name: "futures", tag: "FUTURES", want: InstTypeFutures},
		{name: "option", tag: "OPTION", want: InstTypeOption},
		{name: "unrecognized", tag: "BOGUS", wantErr: true},
		{name: "lowercase_not_accepted", tag: "spot", wantErr: true},
		{name: "empty", tag: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInstType(tt.tag)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseInstType(%q) = %v, want an error", tt.tag, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInstType(%q): %v", tt.tag, err)
			}
			if got != tt.want {
				t.Fatalf("ParseInstType(%q) = %v, want %v", tt.tag, got, tt.want)
			}
		})
	}
}
