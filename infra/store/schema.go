package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS drivers (
    id          TEXT PRIMARY KEY,
    first_name  TEXT NOT NULL DEFAULT '',
    last_name   TEXT NOT NULL DEFAULT '',
    email       TEXT NOT NULL DEFAULT '',
    phone       TEXT NOT NULL DEFAULT '',
    available   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS vehicles (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL DEFAULT '',
    plate_number TEXT NOT NULL DEFAULT '',
    brand        TEXT NOT NULL DEFAULT '',
    model        TEXT NOT NULL DEFAULT '',
    available    INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS bookings (
    id               TEXT PRIMARY KEY,
    code             TEXT NOT NULL DEFAULT '',
    customer_name    TEXT NOT NULL DEFAULT '',
    customer_phone   TEXT NOT NULL DEFAULT '',
    customer_email   TEXT NOT NULL DEFAULT '',
    pickup_date      TEXT NOT NULL DEFAULT '',
    pickup_time      TEXT NOT NULL DEFAULT '',
    pickup_location  TEXT NOT NULL DEFAULT '',
    dropoff_location TEXT NOT NULL DEFAULT '',
    service_name     TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'pending',
    driver_id        TEXT NOT NULL DEFAULT '',
    vehicle_id       TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);

CREATE TABLE IF NOT EXISTS dispatch_entries (
    id          TEXT PRIMARY KEY,
    booking_id  TEXT NOT NULL REFERENCES bookings(id),
    status      TEXT NOT NULL DEFAULT 'pending',
    driver_id   TEXT NOT NULL DEFAULT '',
    vehicle_id  TEXT NOT NULL DEFAULT '',
    start_time  TEXT,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dispatch_entries_booking ON dispatch_entries(booking_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_entries_status ON dispatch_entries(status);

CREATE TABLE IF NOT EXISTS driver_availability (
    id          TEXT PRIMARY KEY,
    driver_id   TEXT NOT NULL,
    start_time  TEXT NOT NULL,
    end_time    TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'unavailable',
    notes       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_driver_availability_driver ON driver_availability(driver_id, notes);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS drivers (
    id          TEXT PRIMARY KEY,
    first_name  TEXT NOT NULL DEFAULT '',
    last_name   TEXT NOT NULL DEFAULT '',
    email       TEXT NOT NULL DEFAULT '',
    phone       TEXT NOT NULL DEFAULT '',
    available   BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS vehicles (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL DEFAULT '',
    plate_number TEXT NOT NULL DEFAULT '',
    brand        TEXT NOT NULL DEFAULT '',
    model        TEXT NOT NULL DEFAULT '',
    available    BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS bookings (
    id               TEXT PRIMARY KEY,
    code             TEXT NOT NULL DEFAULT '',
    customer_name    TEXT NOT NULL DEFAULT '',
    customer_phone   TEXT NOT NULL DEFAULT '',
    customer_email   TEXT NOT NULL DEFAULT '',
    pickup_date      TEXT NOT NULL DEFAULT '',
    pickup_time      TEXT NOT NULL DEFAULT '',
    pickup_location  TEXT NOT NULL DEFAULT '',
    dropoff_location TEXT NOT NULL DEFAULT '',
    service_name     TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'pending',
    driver_id        TEXT NOT NULL DEFAULT '',
    vehicle_id       TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);

CREATE TABLE IF NOT EXISTS dispatch_entries (
    id          TEXT PRIMARY KEY,
    booking_id  TEXT NOT NULL REFERENCES bookings(id),
    status      TEXT NOT NULL DEFAULT 'pending',
    driver_id   TEXT NOT NULL DEFAULT '',
    vehicle_id  TEXT NOT NULL DEFAULT '',
    start_time  TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_dispatch_entries_booking ON dispatch_entries(booking_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_entries_status ON dispatch_entries(status);

CREATE TABLE IF NOT EXISTS driver_availability (
    id          TEXT PRIMARY KEY,
    driver_id   TEXT NOT NULL,
    start_time  TIMESTAMPTZ NOT NULL,
    end_time    TIMESTAMPTZ NOT NULL,
    status      TEXT NOT NULL DEFAULT 'unavailable',
    notes       TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_driver_availability_driver ON driver_availability(driver_id, notes);
`
