package attachments

import "testing"

func TestObjectKeyPinsCanonicalLayout(t *testing.T) {
	if got := ObjectKey("prefix", "e1", "a1", "png"); got != "prefix/resend_e1_a1.png" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestObjectKey(t *testing.T) {
	cases := []struct {
		prefix, email, att, ext string
		want                    string
	}{
		{"", "e1", "a1", "png", "resend_e1_a1.png"},
		{"/inbound/", "e1", "a1", "pdf", "inbound/resend_e1_a1.pdf"},
		{"a/b", "e1", "a1", ".jpeg", "a/b/resend_e1_a1.jpeg"},
		{"p", "e/1", "../a1", "bin", "p/resend_e_1___a1.bin"},
		{"p", "e1", "a1", "", "p/resend_e1_a1"},
	}
	for _, tc := range cases {
		if got := ObjectKey(tc.prefix, tc.email, tc.att, tc.ext); got != tc.want {
			t.Fatalf("ObjectKey(%q,%q,%q,%q)=%q want %q", tc.prefix, tc.email, tc.att, tc.ext, got, tc.want)
		}
	}
}

func TestExtensionFromContentType(t *testing.T) {
	cases := map[string]string{
		"image/png":                       "png",
		"IMAGE/JPEG":                      "jpeg",
		"application/pdf; name=\"x.pdf\"": "pdf",
		"image/svg+xml":                   "svg+xml",
		"application/vnd.ms-excel":        "vnd.ms-excel",
		"text/plain;charset=utf-8":        "plain",
		"":                                "bin",
		"png":                             "bin",
		"application/":                    "bin",
		"application/../../etc":           "etc",
	}
	for in, want := range cases {
		if got := ExtensionFromContentType(in); got != want {
			t.Fatalf("ExtensionFromContentType(%q)=%q want %q", in, got, want)
		}
	}
}
