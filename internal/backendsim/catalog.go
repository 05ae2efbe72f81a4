package backendsim

import "bigscreen/internal/models"

// Categories known to the simulated classifier, in confusion-matrix order.
var categoryOrder = []string{"robot", "agriculture", "landslide", "vision", "microscope", "satellite", "star"}

var categoryLabels = map[string]string{
	"robot":       "机器人",
	"agriculture": "农业",
	"landslide":   "滑坡",
	"vision":      "视觉",
	"microscope":  "显微镜",
	"satellite":   "卫星",
	"star":        "星体",
}

// sourceCategories is what each source is classified into.
var sourceCategories = map[string][]string{
	models.SourceLaw:    {"robot", "vision"},
	models.SourcePaper:  {"microscope", "satellite"},
	models.SourceReport: {"agriculture", "landslide"},
	models.SourcePolicy: {"robot", "agriculture"},
	models.SourceBook:   {"star", "satellite"},
}

var dataSources = []models.DataSource{
	{ID: "1", Name: "法律法规", Type: models.SourceLaw, Description: "法律法规数据源", Count: 1250, LastUpdated: "2024-01-15", Categories: sourceCategories[models.SourceLaw]},
	{ID: "2", Name: "学术论文", Type: models.SourcePaper, Description: "学术论文数据源", Count: 3200, LastUpdated: "2024-01-14", Categories: sourceCategories[models.SourcePaper]},
	{ID: "3", Name: "研究报告", Type: models.SourceReport, Description: "研究报告数据源", Count: 890, LastUpdated: "2024-01-13", Categories: sourceCategories[models.SourceReport]},
	{ID: "4", Name: "政策文件", Type: models.SourcePolicy, Description: "政策文件数据源", Count: 560, LastUpdated: "2024-01-12", Categories: sourceCategories[models.SourcePolicy]},
	{ID: "5", Name: "图书资料", Type: models.SourceBook, Description: "图书资料数据源", Count: 2100, LastUpdated: "2024-01-11", Categories: sourceCategories[models.SourceBook]},
}

var sourceKeywords = map[string][]string{
	models.SourceLaw:    {"自动化", "机器人", "监管", "视觉识别", "责任认定"},
	models.SourcePaper:  {"显微成像", "遥感", "卫星", "细胞", "分辨率"},
	models.SourceReport: {"农业", "滑坡", "灾害", "监测", "产量"},
	models.SourcePolicy: {"产业政策", "机器人", "农业补贴", "创新", "标准"},
	models.SourceBook:   {"天文", "恒星", "卫星", "轨道", "观测"},
}

func categoriesFor(source string) []string {
	if c, ok := sourceCategories[source]; ok {
		return c
	}
	return categoryOrder[:2]
}
