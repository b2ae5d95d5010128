package config

import (
	"fmt"
	"reflect"
	"strings"
)

// ChangeType 变更类型
type ChangeType string

const (
	ChangeTypeAdded    ChangeType = "added"
	ChangeTypeModified ChangeType = "modified"
	ChangeTypeDeleted  ChangeType = "deleted"
)

// ConfigChange 配置变更
type ConfigChange struct {
	Path            string      `json:"path"` // 配置路径（如 "strategy.entry_threshold_ratio"）
	Type            ChangeType  `json:"type"`
	OldValue        interface{} `json:"old_value"`
	NewValue        interface{} `json:"new_value"`
	RequiresRestart bool        `json:"requires_restart"`
}

// ConfigDiff 配置差异
type ConfigDiff struct {
	Changes         []ConfigChange `json:"changes"`
	RequiresRestart bool           `json:"requires_restart"`
}

// 需要重启才能生效的配置段
var restartPrefixes = []string{
	"app",
	"binance",
	"cache",
	"database",
	"events",
	"metrics",
	"web",
	"system.timezone",
}

// DiffConfig 对比两个配置，生成差异
func DiffConfig(oldConfig, newConfig *Config) *ConfigDiff {
	diff := &ConfigDiff{Changes: []ConfigChange{}}
	diff.walk("", reflect.ValueOf(oldConfig), reflect.ValueOf(newConfig))

	for _, change := range diff.Changes {
		if change.RequiresRestart {
			diff.RequiresRestart = true
			break
		}
	}
	return diff
}

// HasChanges 是否存在变更
func (d *ConfigDiff) HasChanges() bool {
	return len(d.Changes) > 0
}

// Paths 变更路径列表
func (d *ConfigDiff) Paths() []string {
	paths := make([]string, 0, len(d.Changes))
	for _, c := range d.Changes {
		paths = append(paths, c.Path)
	}
	return paths
}

func (d *ConfigDiff) walk(path string, oldVal, newVal reflect.Value) {
	oldVal = deref(oldVal)
	newVal = deref(newVal)

	switch {
	case !oldVal.IsValid() && !newVal.IsValid():
		return
	case !newVal.IsValid():
		d.add(path, ChangeTypeDeleted, oldVal.Interface(), nil)
		return
	case !oldVal.IsValid():
		d.add(path, ChangeTypeAdded, nil, newVal.Interface())
		return
	case oldVal.Type() != newVal.Type():
		d.add(path, ChangeTypeModified, oldVal.Interface(), newVal.Interface())
		return
	}

	switch oldVal.Kind() {
	case reflect.Struct:
		typ := oldVal.Type()
		for i := 0; i < typ.NumField(); i++ {
			field := typ.Field(i)
			if !field.IsExported() {
				continue
			}
			name, inline := yamlName(field)
			if name == "-" {
				continue
			}
			fieldPath := path
			if !inline {
				fieldPath = joinPath(path, name)
			}
			d.walk(fieldPath, oldVal.Field(i), newVal.Field(i))
		}
	case reflect.Map:
		for _, key := range oldVal.MapKeys() {
			p := joinPath(path, fmt.Sprint(key.Interface()))
			if nv := newVal.MapIndex(key); nv.IsValid() {
				d.walk(p, oldVal.MapIndex(key), nv)
			} else {
				d.add(p, ChangeTypeDeleted, oldVal.MapIndex(key).Interface(), nil)
			}
		}
		for _, key := range newVal.MapKeys() {
			if !oldVal.MapIndex(key).IsValid() {
				d.add(joinPath(path, fmt.Sprint(key.Interface())), ChangeTypeAdded, nil, newVal.MapIndex(key).Interface())
			}
		}
	case reflect.Slice, reflect.Array:
		// 长度不同视为整体修改
		if oldVal.Len() != newVal.Len() {
			d.add(path, ChangeTypeModified, oldVal.Interface(), newVal.Interface())
			return
		}
		for i := 0; i < oldVal.Len(); i++ {
			d.walk(fmt.Sprintf("%s[%d]", path, i), oldVal.Index(i), newVal.Index(i))
		}
	default:
		if !reflect.DeepEqual(oldVal.Interface(), newVal.Interface()) {
			d.add(path, ChangeTypeModified, oldVal.Interface(), newVal.Interface())
		}
	}
}

func (d *ConfigDiff) add(path string, changeType ChangeType, oldValue, newValue interface{}) {
	d.Changes = append(d.Changes, ConfigChange{
		Path:            path,
		Type:            changeType,
		OldValue:        oldValue,
		NewValue:        newValue,
		RequiresRestart: requiresRestart(path),
	})
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// yamlName 返回字段的 yaml 名称，inline 字段不增加路径层级
func yamlName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("yaml")
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "inline" {
			return "", true
		}
	}
	if parts[0] != "" {
		return parts[0], false
	}
	return strings.ToLower(field.Name), false
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

// requiresRestart 判断配置路径是否需要重启
func requiresRestart(path string) bool {
	for _, prefix := range restartPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+".") {
			return true
		}
	}
	return false
}
