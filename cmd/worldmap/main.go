package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/alecthomas/kong"
	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/emissions-api/worldmap/internal/aggregate"
	"github.com/emissions-api/worldmap/internal/cache"
	"github.com/emissions-api/worldmap/internal/fetch"
	"github.com/emissions-api/worldmap/internal/models"
	"github.com/emissions-api/worldmap/internal/render"
)

const dayFormat = "2006-01-02"

var cliArgs struct {
	URL         string   `help:"URL of the Emissions API instance to receive data from." env:"EMISSIONS_API_URL" default:"https://api.v2.emissions-api.org"`
	NoCaching   bool     `help:"Disable caching of already downloaded data."`
	Output      string   `short:"o" help:"Where to save the image. Defaults to <product>-<day>.png." placeholder:"FILE"`
	Colormap    string   `help:"Colors of the map." enum:"linear,lincutoff" default:"linear"`
	Legend      bool     `help:"Enable the legend on the map."`
	PixelsX     int      `help:"Horizontal image size in pixels." default:"8000"`
	PixelsY     int      `help:"Vertical image size in pixels." default:"4000"`
	DPI         int      `help:"DPI of the image." default:"96"`
	Title       string   `help:"Title of the image. Defaults to '<Product> <day>'."`
	LegendTitle string   `help:"Title of the legend. Defaults to '<Product>'."`
	FontSize    float64  `help:"Size of the title font on the image." default:"50"`
	VMin        *float64 `help:"Value where the colormap starts."`
	VMax        *float64 `help:"Value where the colormap stops."`
	Basemap     string   `help:"GeoJSON file with world boundaries to draw on the map." type:"existingfile"`
	CacheDB     string   `help:"Cache prepared data in a SQLite database at this path instead of per-day files." placeholder:"FILE"`
	Verbose     bool     `short:"v" help:"Be more verbose."`

	Product string `arg:"" help:"Type of product to search for."`
	Day     string `arg:"" help:"Day of the data. Example: 2019-09-01."`
}

func main() {
	kctx := kong.Parse(&cliArgs,
		kong.Name("worldmap"),
		kong.Description("Generate world map images from emission data."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	logger := &log.Logger{Handler: clihandler.New(os.Stderr), Level: log.InfoLevel}
	if cliArgs.Verbose {
		logger.Level = log.DebugLevel
	}

	day, err := time.Parse(dayFormat, cliArgs.Day)
	kctx.FatalIfErrorf(err, "invalid day %q, expected an ISO date like 2019-09-01", cliArgs.Day)

	output := cliArgs.Output
	if output == "" {
		output = fmt.Sprintf("%s-%s.png", cliArgs.Product, day.Format(dayFormat))
	}
	title := cliArgs.Title
	if title == "" {
		title = fmt.Sprintf("%s %s", capitalize(cliArgs.Product), day.Format(dayFormat))
	}
	legendTitle := cliArgs.LegendTitle
	if legendTitle == "" {
		legendTitle = capitalize(cliArgs.Product)
	}

	var store cache.Cache
	if !cliArgs.NoCaching {
		if cliArgs.CacheDB != "" {
			db, err := sql.Open("sqlite", cliArgs.CacheDB)
			if err != nil {
				logger.WithError(err).Fatal("open cache database")
			}
			defer db.Close()
			sc := cache.NewSQLiteCache(db, logger)
			if err := sc.Migrate(); err != nil {
				logger.WithError(err).Fatal("migrate cache database")
			}
			store = sc
		} else {
			store = cache.NewFileCache(".", logger)
		}
	}

	ds, err := getPoints(logger, store, day)
	if err != nil {
		logger.WithError(err).Fatal("get points")
	}

	opts := render.Options{
		PixelsX:     cliArgs.PixelsX,
		PixelsY:     cliArgs.PixelsY,
		DPI:         cliArgs.DPI,
		Colormap:    cliArgs.Colormap,
		Title:       title,
		LegendTitle: legendTitle,
		FontSize:    cliArgs.FontSize,
		Legend:      cliArgs.Legend,
		VMin:        cliArgs.VMin,
		VMax:        cliArgs.VMax,
		Basemap:     cliArgs.Basemap,
	}
	if err := render.New(logger).Render(ds, output, opts); err != nil {
		logger.WithError(err).Fatal("render")
	}
}

// getPoints returns the prepared dataset for the requested day, from the
// cache when possible, otherwise fetched from the API and prepared.
func getPoints(logger log.Interface, store cache.Cache, day time.Time) (models.Dataset, error) {
	logger.Info("getting data")
	if store != nil {
		ds, err := store.Load(cliArgs.Product, day)
		if err != nil {
			return nil, err
		}
		if ds != nil {
			return ds, nil
		}
	}

	client := fetch.New(cliArgs.URL, logger)
	points, err := client.FetchDay(cliArgs.Product, day)
	if err != nil {
		return nil, err
	}

	ds, err := aggregate.New(logger).Prepare(points)
	if err != nil {
		return nil, err
	}

	if store != nil {
		if err := store.Save(ds, cliArgs.Product, day); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// capitalize upper-cases the first rune and lower-cases the rest, matching
// how product names appear in titles.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
