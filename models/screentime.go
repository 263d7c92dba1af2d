package models

import (
	"time"

	"fknsrs.biz/p/kidsbeats/internal/sqlbuilderutil"
)

var (
	ScreenTimeLogTable *sqlbuilderutil.Table
)

func init() {
	ScreenTimeLogTable = sqlbuilderutil.MustMakeTable(ScreenTimeLog{})
}

type ScreenTimeLog struct {
	ID       int `sql:",table:screen_time_logs" json:"id"`
	LoggedAt time.Time `json:"loggedAt"`
	Seconds  int       `json:"seconds"`
	Activity string    `json:"activity"`
}
