//go:build windows

package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows/registry"

	"bitprobe/collectors"
	"bitprobe/report"
)

func hive(name string) registry.Key {
	if name == "HKCU" {
		return registry.CURRENT_USER
	}
	return registry.LOCAL_MACHINE
}

func collect(ctx context.Context, s *collectors.Session) report.Ref {
	var values []Value
	errs := map[string]error{}
	for _, k := range Keys {
		if err := ctx.Err(); err != nil {
			return s.Fail(err)
		}
		vs, err := readKey(k)
		if err != nil {
			errs[k.Label] = err
			continue
		}
		values = append(values, vs...)
	}

	if _, err := collectors.SaveRecords(s, "registry", values); err != nil {
		return s.Fail(err)
	}
	render(s, values, errs)
	if len(errs) == len(Keys) {
		return s.Fail(collectors.E(collectors.KindInternal, "read registry", errors.New("no autostart key could be opened")))
	}
	return s.Succeed()
}

func readKey(k Key) ([]Value, error) {
	key, err := registry.OpenKey(hive(k.Hive), k.Path, registry.QUERY_VALUE)
	if err == registry.ErrNotExist {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s\\%s", k.Hive, k.Path)
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s\\%s", k.Hive, k.Path)
	}

	var out []Value
	for _, name := range names {
		v := Value{Key: k.Label, Name: name}
		if s, typ, err := key.GetStringValue(name); err == nil {
			v.Value, v.Type = s, typeName(typ)
		} else if ss, typ, err := key.GetStringsValue(name); err == nil {
			v.Value, v.Type = strings.Join(ss, "; "), typeName(typ)
		} else if n, typ, err := key.GetIntegerValue(name); err == nil {
			v.Value, v.Type = fmt.Sprint(n), typeName(typ)
		} else if b, typ, err := key.GetBinaryValue(name); err == nil {
			v.Value, v.Type = fmt.Sprintf("%x", b), typeName(typ)
		} else {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func typeName(t uint32) string {
	switch t {
	case registry.SZ:
		return "REG_SZ"
	case registry.EXPAND_SZ:
		return "REG_EXPAND_SZ"
	case registry.MULTI_SZ:
		return "REG_MULTI_SZ"
	case registry.DWORD:
		return "REG_DWORD"
	case registry.QWORD:
		return "REG_QWORD"
	case registry.BINARY:
		return "REG_BINARY"
	}
	return fmt.Sprintf("type %d", t)
}
