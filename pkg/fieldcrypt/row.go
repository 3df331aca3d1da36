package fieldcrypt

import (
	"context"
	"fmt"
)

// SealRow encrypts the given fields of row in place.
func (c *Codec) SealRow(ctx context.Context, fields []Field, row map[string]any) error {
	for _, f := range fields {
		v, ok, err := stringValue(row, f.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		sealed, err := c.Seal(ctx, f, v)
		if err != nil {
			return err
		}
		row[f.Name] = sealed
	}
	return nil
}

// OpenRow decrypts the given fields of row in place.
func (c *Codec) OpenRow(ctx context.Context, subject Subject, fields []Field, row map[string]any) error {
	for _, f := range fields {
		v, ok, err := stringValue(row, f.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		opened, err := c.Open(ctx, subject, f, v)
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		row[f.Name] = opened
	}
	return nil
}

// MaskRow replaces the given fields with Masked so snapshots never carry plaintext or ciphertext.
func MaskRow(fields []Field, row map[string]any) map[string]any {
	if row == nil {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	for _, f := range fields {
		if v, ok := out[f.Name]; ok && v != nil && v != "" {
			out[f.Name] = Masked
		}
	}
	return out
}

func stringValue(row map[string]any, key string) (string, bool, error) {
	raw, ok := row[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	switch v := raw.(type) {
	case string:
		return v, true, nil
	case *string:
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	case []byte:
		return string(v), true, nil
	default:
		return "", false, fmt.Errorf("field %s: unsupported sensitive value type %T", key, raw)
	}
}
