// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package alias

// Kind classifies a built-in entry.
type Kind int

const (
	KindTeam Kind = iota
	KindLeague
)

type builtinEntry struct {
	Canonical string
	Kind      Kind
	Aliases   []string
}

// builtinTable is the static synonym set shipped with the binary.
var builtinTable = []builtinEntry{
	// Leagues and event series
	{"NBA", KindLeague, []string{"National Basketball Association"}},
	{"WNBA", KindLeague, []string{"Women's National Basketball Association"}},
	{"NFL", KindLeague, []string{"National Football League"}},
	{"NHL", KindLeague, []string{"National Hockey League"}},
	{"MLB", KindLeague, []string{"Major League Baseball"}},
	{"MLS", KindLeague, []string{"Major League Soccer"}},
	{"NCAA", KindLeague, []string{"College Football", "College Basketball", "NCAAF", "NCAAB"}},
	{"Premier League", KindLeague, []string{"EPL", "English Premier League", "Barclays Premier League", "Premiership"}},
	{"Champions League", KindLeague, []string{"UEFA Champions League", "UCL"}},
	{"Europa League", KindLeague, []string{"UEFA Europa League", "UEL"}},
	{"La Liga", KindLeague, []string{"LaLiga", "Primera Division"}},
	{"Bundesliga", KindLeague, []string{"1. Bundesliga"}},
	{"Serie A", KindLeague, []string{"Lega Serie A"}},
	{"Ligue 1", KindLeague, []string{"Ligue Un"}},
	{"FA Cup", KindLeague, []string{"Emirates FA Cup"}},
	{"World Cup", KindLeague, []string{"FIFA World Cup"}},
	{"UFC", KindLeague, []string{"Ultimate Fighting Championship"}},
	{"WWE", KindLeague, []string{"World Wrestling Entertainment", "WWE Raw", "WWE SmackDown"}},
	{"Formula 1", KindLeague, []string{"F1", "Formula One"}},
	{"NASCAR", KindLeague, []string{"NASCAR Cup Series"}},
	{"MotoGP", KindLeague, []string{"Moto GP"}},
	{"PGA Tour", KindLeague, []string{"PGA"}},
	{"ATP", KindLeague, []string{"ATP Tour"}},
	{"WTA", KindLeague, []string{"WTA Tour"}},
	{"Six Nations", KindLeague, []string{"Guinness Six Nations", "6 Nations"}},

	// Basketball
	{"Los Angeles Lakers", KindTeam, []string{"Lakers", "LA Lakers", "L.A. Lakers"}},
	{"Golden State Warriors", KindTeam, []string{"Warriors", "GSW", "Golden State"}},
	{"Boston Celtics", KindTeam, []string{"Celtics"}},
	{"New York Knicks", KindTeam, []string{"Knicks", "NY Knicks"}},
	{"Los Angeles Clippers", KindTeam, []string{"Clippers", "LA Clippers"}},
	{"Chicago Bulls", KindTeam, []string{"Bulls"}},
	{"Miami Heat", KindTeam, []string{"Heat"}},
	{"Milwaukee Bucks", KindTeam, []string{"Bucks"}},
	{"Denver Nuggets", KindTeam, []string{"Nuggets"}},
	{"Philadelphia 76ers", KindTeam, []string{"76ers", "Sixers"}},

	// American football
	{"Kansas City Chiefs", KindTeam, []string{"Chiefs", "KC Chiefs"}},
	{"New England Patriots", KindTeam, []string{"Patriots", "Pats"}},
	{"Dallas Cowboys", KindTeam, []string{"Cowboys"}},
	{"Green Bay Packers", KindTeam, []string{"Packers"}},
	{"San Francisco 49ers", KindTeam, []string{"49ers", "Niners", "SF 49ers"}},
	{"Philadelphia Eagles", KindTeam, []string{"Eagles"}},
	{"Buffalo Bills", KindTeam, []string{"Bills"}},

	// Hockey
	{"Toronto Maple Leafs", KindTeam, []string{"Maple Leafs", "Leafs"}},
	{"Montreal Canadiens", KindTeam, []string{"Canadiens", "Habs"}},
	{"Boston Bruins", KindTeam, []string{"Bruins"}},
	{"Chicago Blackhawks", KindTeam, []string{"Blackhawks"}},
	{"Edmonton Oilers", KindTeam, []string{"Oilers"}},
	{"New York Rangers", KindTeam, []string{"NY Rangers"}},

	// Baseball
	{"New York Yankees", KindTeam, []string{"Yankees", "NYY"}},
	{"Boston Red Sox", KindTeam, []string{"Red Sox"}},
	{"Los Angeles Dodgers", KindTeam, []string{"Dodgers", "LA Dodgers"}},
	{"Chicago Cubs", KindTeam, []string{"Cubs"}},

	// Football (soccer)
	{"Manchester City", KindTeam, []string{"Man City", "Man. City", "MCFC"}},
	{"Manchester United", KindTeam, []string{"Man United", "Man Utd", "Man U", "MUFC"}},
	{"Liverpool", KindTeam, []string{"Liverpool FC", "LFC"}},
	{"Arsenal", KindTeam, []string{"Arsenal FC", "Gunners"}},
	{"Chelsea", KindTeam, []string{"Chelsea FC"}},
	{"Tottenham Hotspur", KindTeam, []string{"Tottenham", "Spurs"}},
	{"Newcastle United", KindTeam, []string{"Newcastle", "NUFC"}},
	{"Real Madrid", KindTeam, []string{"Real Madrid CF", "Los Blancos"}},
	{"FC Barcelona", KindTeam, []string{"Barcelona", "Barca", "Barça"}},
	{"Atletico Madrid", KindTeam, []string{"Atlético Madrid", "Atleti"}},
	{"Bayern Munich", KindTeam, []string{"FC Bayern", "Bayern", "Bayern München", "FC Bayern Munich"}},
	{"Borussia Dortmund", KindTeam, []string{"Dortmund", "BVB"}},
	{"Juventus", KindTeam, []string{"Juve", "Juventus FC"}},
	{"Inter Milan", KindTeam, []string{"Internazionale", "Inter Milano"}},
	{"AC Milan", KindTeam, []string{"A.C. Milan"}},
	{"Paris Saint-Germain", KindTeam, []string{"PSG", "Paris SG", "Paris Saint Germain"}},
	{"Inter Miami", KindTeam, []string{"Inter Miami CF"}},
	{"LA Galaxy", KindTeam, []string{"Los Angeles Galaxy", "Galaxy"}},
}

// Leagues returns the canonical names of all built-in leagues and event series.
func Leagues() []string {
	var out []string
	for _, e := range builtinTable {
		if e.Kind == KindLeague {
			out = append(out, e.Canonical)
		}
	}
	return out
}
