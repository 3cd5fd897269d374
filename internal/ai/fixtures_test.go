package ai

import "github.com/ortelius/versionwatch/model"

func testItem() *model.MonitoredItem {
	current, latest := "9.5.0", "11.3.0"
	item := model.NewMonitoredItem()
	item.Key = "grafana"
	item.Name = "grafana"
	item.Type = "container"
	item.CurrentVersion = &current
	item.LatestVersion = &latest
	item.Status = model.StatusOutdated
	return item
}
