package queuenames

const (
	UpdateCheck      = "update_check"
	UpdateDownload   = "update_download"
	PlaylistRecount  = "playlist_recount"
	ScreenTimeReport = "screen_time_report"
)

var Priority = []string{
	UpdateCheck,
	PlaylistRecount,
	ScreenTimeReport,
	UpdateDownload,
}
