package cache

// SetIfVersionScript exposes the conditional write script to tests.
const SetIfVersionScript = setIfVersionScript
