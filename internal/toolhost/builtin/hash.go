package builtin

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/pkg/fabric"
)

// hashTool groups digest operations (§1 "hashing").
func hashTool() toolhost.Tool {
	digest := func(sum func([]byte) string) toolhost.Method {
		return func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
			input, _ := params["input"].(string)
			return map[string]interface{}{"digest": sum([]byte(input))}, nil
		}
	}
	sha256sum := func(b []byte) string { s := sha256.Sum256(b); return hex.EncodeToString(s[:]) }
	sha1sum := func(b []byte) string { s := sha1.Sum(b); return hex.EncodeToString(s[:]) }
	md5sum := func(b []byte) string { s := md5.Sum(b); return hex.EncodeToString(s[:]) }

	return toolhost.Tool{
		Descriptor: fabric.ToolDescriptor{
			ToolID:   "crypto.hash",
			Category: "crypto",
			Provider: fabric.ProviderBuiltin,
			Capabilities: map[string]string{
				"sha256": "sha256",
				"sha1":   "sha1",
				"md5":    "md5",
			},
		},
		Methods: map[string]toolhost.Method{
			"sha256": digest(sha256sum),
			"sha1":   digest(sha1sum),
			"md5":    digest(md5sum),
		},
	}
}

// encodingTool groups base64 operations (§1 "base64").
func encodingTool() toolhost.Tool {
	encode := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		input, _ := params["input"].(string)
		return map[string]interface{}{"output": base64.StdEncoding.EncodeToString([]byte(input))}, nil
	}
	decode := func(ctx context.Context, params map[string]interface{}, tier fabric.TrustTier) (interface{}, error) {
		input, _ := params["input"].(string)
		out, err := base64.StdEncoding.DecodeString(input)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 input: %w", err)
		}
		return map[string]interface{}{"output": string(out)}, nil
	}

	return toolhost.Tool{
		Descriptor: fabric.ToolDescriptor{
			ToolID:   "encoding.base64",
			Category: "encoding",
			Provider: fabric.ProviderBuiltin,
			Capabilities: map[string]string{
				"encode": "encode",
				"decode": "decode",
			},
		},
		Methods: map[string]toolhost.Method{
			"encode": encode,
			"decode": decode,
		},
	}
}
