package cmdutil

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/errors"
)

// Decoder supplies settings from somewhere other than the environment, such as a file.
type Decoder interface {
	Decode() (map[string]string, error)
}

const (
	cannotParseErr              = "cannot parse"
	envKeyNotSetWhenRequiredErr = "env key not set when required"
	expectedPointerErr          = "expected pointer"
	expectedStructErr           = "expected struct"
	fieldTypeNotAllowedErr      = "field type not allowed"
	invalidTagErr               = "invalid tag, must be KEY,{required},{default=DEFAULT_VALUE}"
)

// These are types that we unmarshal directly, without recursing into them or going by their kind.
var knownTypes = map[reflect.Type]func(string) (any, error){
	reflect.TypeOf(time.Duration(0)): func(x string) (any, error) {
		return time.ParseDuration(x) //nolint:wrapcheck
	},
	reflect.TypeOf(time.Time{}): func(x string) (any, error) {
		return time.Parse(time.RFC3339, x) //nolint:wrapcheck
	},
}

// Populate fills the `env`-tagged fields of the struct object points to, recursing into nested
// structs.  A tag reads `env:"KEY"`, `env:"KEY,required"` or `env:"KEY,default=VALUE"`.
//
// The environment has precedence over the decoders, earlier decoders have precedence over later
// decoders, and all of them over the default.
func Populate(object interface{}, decoders ...Decoder) error {
	decoded := make(map[string]string)
	for _, d := range decoders {
		kv, err := d.Decode()
		if err != nil {
			return errors.EnsureStack(err)
		}
		for k, v := range kv {
			if _, ok := decoded[k]; !ok && v != "" {
				decoded[k] = v
			}
		}
	}
	return walk(object, func(tag envTag) (string, error) {
		if v := os.Getenv(tag.key); v != "" {
			return v, nil
		}
		if v := decoded[tag.key]; v != "" {
			return v, nil
		}
		if tag.required {
			return "", errors.Errorf("%s: %s", envKeyNotSetWhenRequiredErr, tag.key)
		}
		return tag.defaultValue, nil
	})
}

// PopulateDefaults fills each tagged field that has a default with that default, ignoring the
// environment.  Tests use it.
func PopulateDefaults(object interface{}) error {
	return walk(object, func(tag envTag) (string, error) {
		return tag.defaultValue, nil
	})
}

func walk(object interface{}, value func(envTag) (string, error)) error {
	v := reflect.ValueOf(object)
	if v.Kind() != reflect.Ptr {
		return errors.Errorf("%s: %v", expectedPointerErr, v.Type())
	}
	return walkStruct(v.Elem(), value)
}

func walkStruct(v reflect.Value, value func(envTag) (string, error)) error {
	if v.Kind() != reflect.Struct {
		return errors.Errorf("%s: %v", expectedStructErr, v.Type())
	}
	for i := 0; i < v.NumField(); i++ {
		field, structField := v.Field(i), v.Type().Field(i)
		if _, known := knownTypes[structField.Type]; !known && structField.Type.Kind() == reflect.Struct {
			if err := walkStruct(field, value); err != nil {
				return err
			}
			continue
		}
		tag, err := getEnvTag(structField)
		if err != nil {
			return err
		}
		if tag == nil {
			continue
		}
		raw, err := value(*tag)
		if err != nil {
			return err
		}
		if raw == "" {
			continue
		}
		if err := setField(field, raw); err != nil {
			return errors.Wrapf(err, "%s %s", cannotParseErr, tag.key)
		}
	}
	return nil
}

type envTag struct {
	key          string
	required     bool
	defaultValue string
}

func getEnvTag(structField reflect.StructField) (*envTag, error) {
	tag := structField.Tag.Get("env")
	if tag == "" {
		return nil, nil
	}
	key, opt, _ := strings.Cut(tag, ",")
	t := &envTag{key: key}
	switch name, def, hasValue := strings.Cut(strings.TrimSpace(opt), "="); name {
	case "":
	case "required":
		t.required = true
	case "default":
		if !hasValue {
			return nil, errors.Errorf("%s: %s", invalidTagErr, tag)
		}
		t.defaultValue = def
	default:
		return nil, errors.Errorf("%s: %s", invalidTagErr, tag)
	}
	return t, nil
}

func setField(field reflect.Value, raw string) error {
	if parse, ok := knownTypes[field.Type()]; ok {
		v, err := parse(raw)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(v))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.EnsureStack(err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return errors.EnsureStack(err)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return errors.EnsureStack(err)
		}
		field.SetUint(n)
	default:
		return errors.Errorf("%s: %v", fieldTypeNotAllowedErr, field.Kind())
	}
	return nil
}
