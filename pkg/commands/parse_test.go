package commands

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text     string
		prefix   string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"/help", "/", "help", nil, true},
		{"/HELP", "/", "help", nil, true},
		{"  /help  ", "/", "help", nil, true},
		{"/help registro ahora", "/", "help", []string{"registro", "ahora"}, true},
		{"/whoami@charlabot", "/", "whoami", nil, true},
		{"/whoami@charlabot extra", "/", "whoami", []string{"extra"}, true},
		{"!ping", "!", "ping", nil, true},
		{"hola", "/", "", nil, false},
		{"/", "/", "", nil, false},
		{"/ args only", "/", "", nil, false},
		{"", "/", "", nil, false},
		{"/help", "", "", nil, false},
	}

	for _, tt := range tests {
		name, args, ok := Parse(tt.text, tt.prefix)
		if ok != tt.wantOK {
			t.Errorf("Parse(%q, %q) ok = %v, want %v", tt.text, tt.prefix, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if name != tt.wantName {
			t.Errorf("Parse(%q) name = %q, want %q", tt.text, name, tt.wantName)
		}
		if len(args) != len(tt.wantArgs) || (len(args) > 0 && !reflect.DeepEqual(args, tt.wantArgs)) {
			t.Errorf("Parse(%q) args = %v, want %v", tt.text, args, tt.wantArgs)
		}
	}
}
