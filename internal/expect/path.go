package expect

import "strings"

// PathSeparator 嵌套字段的分隔符，例如 "cert>certificates"
const PathSeparator = ">"

// Resolve 在响应文档中按路径查找节点。
// 第二个返回值为 false 表示路径不存在；路径末端的 JSON null 返回 (nil, true)。
func Resolve(doc interface{}, path string) (interface{}, bool) {
	if _, ok := doc.(map[string]interface{}); !ok {
		return nil, false
	}

	var node interface{} = doc
	for _, segment := range strings.Split(path, PathSeparator) {
		obj, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		next, exists := obj[segment]
		if !exists {
			return nil, false
		}
		node = next
	}
	return node, true
}

// lookup 与 Resolve 相同，但把 null 视为不存在
func lookup(doc interface{}, path string) (interface{}, bool) {
	node, ok := Resolve(doc, path)
	if !ok || node == nil {
		return nil, false
	}
	return node, true
}

// Has 判断路径是否指向一个非 null 的节点
func Has(doc interface{}, path string) bool {
	_, ok := lookup(doc, path)
	return ok
}

// String 返回路径指向的字符串，非字符串或不存在时返回空串
func String(doc interface{}, path string) string {
	node, ok := lookup(doc, path)
	if !ok {
		return ""
	}
	s, _ := node.(string)
	return s
}
