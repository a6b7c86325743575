package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"ledger/internal/core"
)

const maxBodyBytes = 1 << 20

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindBool
)

var expenseFieldKinds = map[string]fieldKind{
	"eventId":    kindString,
	"workshopId": kindString,
	"categoryId": kindString,
	"itemName":   kindString,
	"quantity":   kindNumber,
	"unitPrice":  kindNumber,
	"amount":     kindNumber,
	"remarks":    kindString,
	"productId":  kindString,
}

var patchFieldKinds = map[string]fieldKind{
	"itemName":  kindString,
	"quantity":  kindNumber,
	"unitPrice": kindNumber,
	"amount":    kindNumber,
	"remarks":   kindString,
}

var kindMessages = map[fieldKind]string{
	kindString: "must be a string",
	kindNumber: "must be a number",
	kindBool:   "must be a boolean",
}

// readObject decodes the request body as a single JSON object. Numbers are
// kept as json.Number so their type can be checked before conversion.
func readObject(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes+1))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", errInvalidJSON)
	}
	if dec.InputOffset() > maxBodyBytes {
		return nil, fmt.Errorf("%w: body too large", errInvalidJSON)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: body must be an object", errInvalidJSON)
	}
	return obj, nil
}

// checkKinds reports fields whose JSON type is wrong and removes them from
// obj so the typed decode that follows cannot fail on them. Null counts as
// absent.
func checkKinds(obj map[string]any, kinds map[string]fieldKind, prefix string) []core.FieldError {
	var errs []core.FieldError
	for _, name := range sortedKeys(kinds) {
		v, present := obj[name]
		if !present || v == nil {
			continue
		}
		if !hasKind(v, kinds[name]) {
			errs = append(errs, core.FieldError{Field: prefix + name, Message: kindMessages[kinds[name]], Value: v})
			delete(obj, name)
		}
	}
	return errs
}

func hasKind(v any, kind fieldKind) bool {
	switch kind {
	case kindString:
		_, ok := v.(string)
		return ok
	case kindNumber:
		n, ok := v.(json.Number)
		if !ok {
			return false
		}
		_, err := n.Float64()
		return err == nil
	case kindBool:
		_, ok := v.(bool)
		return ok
	}
	return false
}

func sortedKeys(m map[string]fieldKind) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// into re-encodes the checked object into its typed form.
func into(obj map[string]any, dst any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(obj); err != nil {
		return err
	}
	return json.NewDecoder(&buf).Decode(dst)
}

// mergeFieldErrors appends validation errors that are not about a field
// already rejected for its type.
func mergeFieldErrors(typeErrs, validationErrs []core.FieldError) []core.FieldError {
	merged := typeErrs
	for _, ve := range validationErrs {
		shadowed := slices.ContainsFunc(typeErrs, func(te core.FieldError) bool {
			return ve.Field == te.Field || strings.HasPrefix(ve.Field, te.Field+".")
		})
		if !shadowed {
			merged = append(merged, ve)
		}
	}
	return merged
}

func decodeExpenseInput(r *http.Request) (core.ExpenseInput, error) {
	var in core.ExpenseInput
	obj, err := readObject(r)
	if err != nil {
		return in, err
	}
	typeErrs := checkKinds(obj, expenseFieldKinds, "")
	if err := into(obj, &in); err != nil {
		return in, fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return in, core.NewValidationError(mergeFieldErrors(typeErrs, in.Validate("")))
}

func decodeBulkInput(r *http.Request) (core.BulkExpenseInput, error) {
	var in core.BulkExpenseInput
	obj, err := readObject(r)
	if err != nil {
		return in, err
	}

	var typeErrs []core.FieldError
	typeErrs = append(typeErrs, checkKinds(obj, map[string]fieldKind{"sendEmail": kindBool}, "")...)

	if raw, ok := obj["expenses"]; ok && raw != nil {
		items, isArray := raw.([]any)
		if !isArray {
			// reported as missing by validation below
			delete(obj, "expenses")
		}
		for i, item := range items {
			prefix := fmt.Sprintf("expenses[%d]", i)
			itemObj, isObject := item.(map[string]any)
			if !isObject {
				typeErrs = append(typeErrs, core.FieldError{Field: prefix, Message: "must be an object", Value: item})
				items[i] = map[string]any{}
				continue
			}
			typeErrs = append(typeErrs, checkKinds(itemObj, expenseFieldKinds, prefix+".")...)
		}
	}

	if err := into(obj, &in); err != nil {
		return in, fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return in, core.NewValidationError(mergeFieldErrors(typeErrs, in.Validate()))
}

func decodePatch(r *http.Request, id string) (core.ExpensePatch, error) {
	var patch core.ExpensePatch
	obj, err := readObject(r)
	if err != nil {
		return patch, err
	}
	typeErrs := checkKinds(obj, patchFieldKinds, "")
	if err := into(obj, &patch); err != nil {
		return patch, fmt.Errorf("%w: %v", errInvalidJSON, err)
	}

	var idErrs []core.FieldError
	if err := core.ValidateID("id", id); err != nil {
		idErrs = err.(*core.ValidationError).Fields
	}
	return patch, core.NewValidationError(mergeFieldErrors(append(idErrs, typeErrs...), patch.Validate()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
