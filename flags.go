package main

import (
	"flag"
	"time"
)

var sourceDir = flag.String(
	"source-dir",
	"",
	"the directory containing the sharded dataset files to remap",
)

var targetDir = flag.String(
	"target-dir",
	"",
	"the directory to write part-NNNNN files into. created recursively if missing",
)

var datasetSplit = flag.String(
	"split",
	"",
	"the dataset split to remap, either train or validation",
)

var totalShards = flag.Int(
	"total-shards",
	0,
	"the total shard count encoded in the source filenames, e.g. 128 for validation-00000-of-00128",
)

var concurrency = flag.Int(
	"concurrency",
	1,
	"the number of shard copies in flight at once. 1 processes files sequentially in listing order",
)

var hardLink = flag.Bool(
	"hard-link",
	false,
	"create real hard links instead of copying file contents. faster, but requires the source and target directories to be on the same filesystem. the per-file log line is unchanged either way",
)

var failFast = flag.Bool(
	"fail-fast",
	false,
	"abort on the first failed copy instead of continuing and summarizing all failures at the end",
)

var cleanStale = flag.Bool(
	"clean",
	false,
	"before copying, remove part-* files in the target directory that no matched source shard maps to",
)

var verifyTargets = flag.Bool(
	"verify",
	false,
	"after copying, re-read each target file and check its checksum against the source",
)

var verifyRows = flag.Bool(
	"verify-rows",
	false,
	"with -verify, additionally open each shard as parquet and compare row counts between source and target",
)

var watchSource = flag.Bool(
	"watch",
	false,
	"after the initial pass, keep running and remap new shards as they appear in the source directory. stopped with an interrupt",
)

var outputDir = flag.String(
	"output-dir",
	"",
	"directory to write copies.csv and report.json into. must not already exist",
)

var mysqlDsn = flag.String(
	"mysql-dsn",
	"",
	"the MySQL DSN to connect to and store run history in (optional)",
)

var reportInterval = flag.Duration(
	"report-interval",
	time.Second*30,
	"how often to print a progress report while in watch mode",
)

var logLevel = flag.String(
	"log-level",
	"info",
	"log verbosity, one of: debug, info, warn, error",
)
