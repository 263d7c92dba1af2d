package migrate

// Schema history. The store predates this codebase by several releases, so
// the oldest version that can still be migrated is 7; anything older has to
// be rebuilt by the app from scratch.
//
// Foreign keys are declared for documentation and for any client that turns
// the pragma on, but this layer keeps enforcement at SQLite's default (off)
// and maintains the playlist-side cascades itself: a video or track may
// belong to several playlists, and deleting it from the catalog must leave
// the membership rows in place (they keep the position slot; the display
// data is gone).

const schemaVersion7 = `
create table videos (
	id text primary key,
	created_at timestamp not null,
	title text not null,
	channel_id text not null,
	channel_name text not null,
	thumbnail_url text,
	duration_seconds integer not null default 0
);

create table music_tracks (
	id text primary key,
	created_at timestamp not null,
	title text not null,
	artist_id text not null,
	artist_name text not null,
	album_name text,
	thumbnail_url text,
	duration_seconds integer not null default 0
);

create table playlists (
	id integer primary key autoincrement,
	created_at timestamp not null,
	updated_at timestamp not null,
	name text not null,
	description text,
	thumbnail_url text,
	video_count integer not null default 0,
	is_favorite integer not null default 0,
	color text not null default 'pink'
);

create table playlist_videos (
	playlist_id integer not null,
	video_id text not null,
	position integer not null,
	added_at timestamp not null,
	primary key (playlist_id, video_id),
	foreign key (playlist_id) references playlists (id) on delete cascade,
	foreign key (video_id) references videos (id) on delete cascade
);

create index if not exists index_playlist_videos_playlist_id on playlist_videos (playlist_id);
create index if not exists index_playlist_videos_video_id on playlist_videos (video_id);

create table screen_time_logs (
	id integer primary key autoincrement,
	logged_at timestamp not null,
	seconds integer not null,
	activity text not null
);

create table content_filters (
	kind text not null,
	ref_id text not null,
	primary key (kind, ref_id)
);

create table jobs (
	id integer primary key autoincrement,
	created_at timestamp not null,
	queue_name text not null,
	payload text not null,
	run_after timestamp not null,
	failure_delay integer not null default 0,
	attempts_remaining integer not null default 0,
	reserved_at timestamp,
	reserved_until timestamp,
	finished_at timestamp,
	error_messages text not null default '[]',
	output_messages text not null default '[]',
	progress integer
);
`

const sharingTables = `
create table shared_playlists (
	id integer primary key autoincrement,
	share_code text not null unique,
	playlist_id integer not null,
	playlist_name text not null,
	description text,
	color text not null,
	shared_by_child_name text not null,
	shared_by_family_id text not null,
	shared_at timestamp not null,
	expires_at timestamp not null,
	redeem_count integer not null default 0,
	max_redeems integer not null,
	is_active integer not null default 1
);

create table shared_playlist_videos (
	share_code text not null,
	video_id text not null,
	position integer not null,
	title text not null,
	channel_id text not null,
	channel_name text not null,
	thumbnail_url text,
	duration_seconds integer not null default 0,
	primary key (share_code, video_id)
);

create table shared_playlist_tracks (
	share_code text not null,
	track_id text not null,
	position integer not null,
	title text not null,
	artist_id text not null,
	artist_name text not null,
	album_name text,
	thumbnail_url text,
	duration_seconds integer not null default 0,
	primary key (share_code, track_id)
);
`

// schemaVersion10 is what a fresh store gets: the v7 tables with every later
// change already applied. Must stay equivalent to replaying every step from
// 7 through 10.
const schemaVersion10 = `
create table videos (
	id text primary key,
	created_at timestamp not null,
	title text not null,
	channel_id text not null,
	channel_name text not null,
	thumbnail_url text,
	duration_seconds integer not null default 0
);

create table music_tracks (
	id text primary key,
	created_at timestamp not null,
	title text not null,
	artist_id text not null,
	artist_name text not null,
	album_name text,
	thumbnail_url text,
	duration_seconds integer not null default 0
);

create table video_playlists (
	id integer primary key autoincrement,
	created_at timestamp not null,
	updated_at timestamp not null,
	name text not null,
	description text,
	thumbnail_url text,
	video_count integer not null default 0,
	is_favorite integer not null default 0,
	color text not null default 'pink',
	share_code text default null,
	shared_at timestamp default null,
	is_imported integer not null default 0,
	imported_from text default null,
	imported_at timestamp default null,
	track_count integer not null default 0
);

create table playlist_videos (
	playlist_id integer not null,
	video_id text not null,
	position integer not null,
	added_at timestamp not null,
	primary key (playlist_id, video_id),
	foreign key (playlist_id) references video_playlists (id) on delete cascade,
	foreign key (video_id) references videos (id) on delete no action
);

create index if not exists index_playlist_videos_playlist_id on playlist_videos (playlist_id);
create index if not exists index_playlist_videos_video_id on playlist_videos (video_id);

create table video_playlist_tracks (
	playlist_id integer not null,
	track_id text not null,
	position integer not null,
	added_at timestamp not null,
	primary key (playlist_id, track_id),
	foreign key (playlist_id) references video_playlists (id) on delete cascade,
	foreign key (track_id) references music_tracks (id) on delete no action
);

create index if not exists index_video_playlist_tracks_playlist_id on video_playlist_tracks (playlist_id);
create index if not exists index_video_playlist_tracks_track_id on video_playlist_tracks (track_id);

create table screen_time_logs (
	id integer primary key autoincrement,
	logged_at timestamp not null,
	seconds integer not null,
	activity text not null
);

create table content_filters (
	kind text not null,
	ref_id text not null,
	primary key (kind, ref_id)
);

create table jobs (
	id integer primary key autoincrement,
	created_at timestamp not null,
	queue_name text not null,
	payload text not null,
	run_after timestamp not null,
	failure_delay integer not null default 0,
	attempts_remaining integer not null default 0,
	reserved_at timestamp,
	reserved_until timestamp,
	finished_at timestamp,
	error_messages text not null default '[]',
	output_messages text not null default '[]',
	progress integer
);
` + sharingTables
