package lifecycle

// selectLastSuccess 反向扫描，保留最后一个满足 ok 的响应；
// others 为其余满足 ok 的响应下标，调用方负责清理（撤销）。
// 没有满足条件的响应时 keep 为 -1。
func selectLastSuccess(docs []interface{}, ok func(doc interface{}) bool) (keep int, others []int) {
	keep = -1
	for i := len(docs) - 1; i >= 0; i-- {
		if !ok(docs[i]) {
			continue
		}
		if keep < 0 {
			keep = i
			continue
		}
		others = append(others, i)
	}
	return keep, others
}
