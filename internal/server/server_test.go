package server

import "testing"

func TestShouldSkipJWT_WebhookPaths(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/webhooks/line", want: true},
		{path: "/ping", want: true},
		{path: "/health", want: true},
		{path: "/", want: true},
		{path: "/admin/tenants", want: false},
		{path: "/admin/tenants/t1/payments", want: false},
		{path: "/webhook", want: false},
	}

	for _, tc := range cases {
		got := shouldSkipJWT(tc.path)
		if got != tc.want {
			t.Fatalf("path=%q want=%v got=%v", tc.path, tc.want, got)
		}
	}
}
