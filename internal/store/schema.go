package store

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		id          TEXT PRIMARY KEY,
		teacher_id  TEXT NOT NULL,
		name        TEXT NOT NULL,
		code        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		schedule    TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_courses_teacher ON courses (teacher_id)`,
	`CREATE TABLE IF NOT EXISTS course_students (
		course_id   TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		student_id  TEXT NOT NULL,
		enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (course_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_codes (
		id             TEXT PRIMARY KEY,
		issuer_id      TEXT NOT NULL,
		course_id      TEXT NOT NULL,
		token          TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		expires_at     TIMESTAMPTZ NOT NULL,
		latitude       DOUBLE PRECISION,
		longitude      DOUBLE PRECISION,
		radius_meters  DOUBLE PRECISION NOT NULL DEFAULT 100,
		location_name  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_codes_token ON attendance_codes (token, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id                TEXT PRIMARY KEY,
		student_id        TEXT NOT NULL,
		course_id         TEXT NOT NULL,
		code_id           TEXT NOT NULL REFERENCES attendance_codes(id),
		student_latitude  DOUBLE PRECISION,
		student_longitude DOUBLE PRECISION,
		distance_meters   DOUBLE PRECISION,
		accuracy_meters   DOUBLE PRECISION,
		is_late           BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL,
		time_in           TIMESTAMPTZ NOT NULL,
		time_out          TIMESTAMPTZ,
		ledger_tx_hash    TEXT NOT NULL DEFAULT '',
		UNIQUE (student_id, code_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_course ON attendance_records (course_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS homework (
		id          TEXT PRIMARY KEY,
		course_id   TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		teacher_id  TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date    TIMESTAMPTZ NOT NULL,
		attachments TEXT NOT NULL DEFAULT '[]',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_homework_course ON homework (course_id, due_date)`,
	`CREATE TABLE IF NOT EXISTS homework_submissions (
		id              TEXT PRIMARY KEY,
		homework_id     TEXT NOT NULL REFERENCES homework(id) ON DELETE CASCADE,
		student_id      TEXT NOT NULL,
		submission_text TEXT NOT NULL DEFAULT '',
		attachments     TEXT NOT NULL DEFAULT '[]',
		submitted_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		grade           NUMERIC(5,2),
		feedback        TEXT NOT NULL DEFAULT '',
		UNIQUE (homework_id, student_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_student ON homework_submissions (student_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		id          TEXT PRIMARY KEY,
		teacher_id  TEXT NOT NULL,
		name        TEXT NOT NULL,
		code        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		schedule    TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_courses_teacher ON courses (teacher_id)`,
	`CREATE TABLE IF NOT EXISTS course_students (
		course_id   TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		student_id  TEXT NOT NULL,
		enrolled_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (course_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_codes (
		id             TEXT PRIMARY KEY,
		issuer_id      TEXT NOT NULL,
		course_id      TEXT NOT NULL,
		token          TEXT NOT NULL,
		created_at     DATETIME NOT NULL,
		expires_at     DATETIME NOT NULL,
		latitude       REAL,
		longitude      REAL,
		radius_meters  REAL NOT NULL DEFAULT 100,
		location_name  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_codes_token ON attendance_codes (token, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id                TEXT PRIMARY KEY,
		student_id        TEXT NOT NULL,
		course_id         TEXT NOT NULL,
		code_id           TEXT NOT NULL REFERENCES attendance_codes(id),
		student_latitude  REAL,
		student_longitude REAL,
		distance_meters   REAL,
		accuracy_meters   REAL,
		is_late           BOOLEAN NOT NULL DEFAULT 0,
		created_at        DATETIME NOT NULL,
		time_in           DATETIME NOT NULL,
		time_out          DATETIME,
		ledger_tx_hash    TEXT NOT NULL DEFAULT '',
		UNIQUE (student_id, code_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_course ON attendance_records (course_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS homework (
		id          TEXT PRIMARY KEY,
		course_id   TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		teacher_id  TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date    DATETIME NOT NULL,
		attachments TEXT NOT NULL DEFAULT '[]',
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_homework_course ON homework (course_id, due_date)`,
	`CREATE TABLE IF NOT EXISTS homework_submissions (
		id              TEXT PRIMARY KEY,
		homework_id     TEXT NOT NULL REFERENCES homework(id) ON DELETE CASCADE,
		student_id      TEXT NOT NULL,
		submission_text TEXT NOT NULL DEFAULT '',
		attachments     TEXT NOT NULL DEFAULT '[]',
		submitted_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		grade           REAL,
		feedback        TEXT NOT NULL DEFAULT '',
		UNIQUE (homework_id, student_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_student ON homework_submissions (student_id)`,
}
